package attribution

import (
	"sort"

	"github.com/revlens/attribution/internal/models"
)

// dailyRevenue accumulates one UTC calendar day's totals.
type dailyRevenue struct {
	Total      float64
	Attributed float64
}

// foldRevenueShare buckets purchases by UTC calendar day. Every purchase
// counts toward the day's total; only attributed ones count toward the
// attributed figure.
func foldRevenueShare(purchases []models.Purchase) map[string]dailyRevenue {
	days := make(map[string]dailyRevenue)
	for _, p := range purchases {
		day := p.Timestamp.UTC().Format("2006-01-02")
		d := days[day]
		d.Total += p.Value
		if p.Attributed() {
			d.Attributed += p.Value
		}
		days[day] = d
	}
	return days
}

// buildRevenueShareRows emits one row per day, sorted by date. The share
// percentage is defined as zero when the day's total is zero so no
// NaN or Inf ever reaches the output.
func buildRevenueShareRows(days map[string]dailyRevenue) []models.RevenueShareRow {
	rows := make([]models.RevenueShareRow, 0, len(days))
	for day, d := range days {
		share := 0.0
		if d.Total > 0 {
			share = d.Attributed / d.Total * 100
		}
		rows = append(rows, models.RevenueShareRow{
			Date:              day,
			TotalShopRevenue:  d.Total,
			AttributedRevenue: d.Attributed,
			RevenueSharePct:   share,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}
