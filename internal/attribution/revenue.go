package attribution

import (
	"time"

	"github.com/revlens/attribution/internal/models"
)

// revenueSplit accumulates one source's revenue by customer kind.
type revenueSplit struct {
	New       float64
	Recurring float64
}

// foldRevenueSplit sums classified purchase values per attributed source.
// Unattributed purchases have no key to aggregate under and are skipped.
func foldRevenueSplit(classifications []Classification) map[string]revenueSplit {
	splits := make(map[string]revenueSplit)
	for _, cl := range classifications {
		if !cl.Purchase.Attributed() {
			continue
		}
		split := splits[cl.Purchase.SourceID]
		if cl.Recurring {
			split.Recurring += cl.Purchase.Value
		} else {
			split.New += cl.Purchase.Value
		}
		splits[cl.Purchase.SourceID] = split
	}
	return splits
}

// buildRevenueSplitRows emits one row per fetched source, in input order,
// joining the aggregate-sum totals with the new/recurring split.
// Sources that drove no revenue get a zero-filled row.
func buildRevenueSplitRows(sources []models.Source, totals map[string]float64, splits map[string]revenueSplit) []models.RevenueSplitRow {
	rows := make([]models.RevenueSplitRow, 0, len(sources))
	for _, src := range sources {
		split := splits[src.ID]
		rows = append(rows, models.RevenueSplitRow{
			CampaignID:                src.ID,
			CampaignName:              src.Name,
			SendTime:                  src.SendTime.UTC().Format(time.RFC3339),
			TotalAttributedRevenue:    totals[src.ID],
			NewCustomersRevenue:       split.New,
			RecurringCustomersRevenue: split.Recurring,
		})
	}
	return rows
}
