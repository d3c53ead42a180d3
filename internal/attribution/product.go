package attribution

import (
	"sort"

	"github.com/revlens/attribution/internal/models"
)

// productKey identifies a (product, source) pair in the fold.
type productKey struct {
	ProductID string
	SourceID  string
}

// productTotals accumulates one pair's sales. Name and category keep the
// first-seen values when records disagree.
type productTotals struct {
	Name     string
	Category string
	Units    int
	Revenue  float64
}

// foldProducts explodes the line items of attributed purchases into
// per-(product, source) totals. Unattributed purchases are skipped.
func foldProducts(purchases []models.Purchase) map[productKey]*productTotals {
	totals := make(map[productKey]*productTotals)
	for _, p := range purchases {
		if !p.Attributed() {
			continue
		}
		for _, item := range p.Items {
			key := productKey{ProductID: item.ProductID, SourceID: p.SourceID}
			t, ok := totals[key]
			if !ok {
				t = &productTotals{Name: item.ProductName, Category: item.Category}
				totals[key] = t
			}
			t.Units += item.Quantity
			t.Revenue += item.UnitPrice * float64(item.Quantity)
		}
	}
	return totals
}

// buildProductRows groups the fold by source: one row per source carrying
// its product subtotals, products ordered by revenue descending. Sources
// outside the fetched lookup table are reported with an "Unknown" name.
func buildProductRows(totals map[productKey]*productTotals, index models.SourceIndex) []models.ProductAttributionRow {
	bySource := make(map[string][]models.ProductStat)
	for key, t := range totals {
		bySource[key.SourceID] = append(bySource[key.SourceID], models.ProductStat{
			ProductID:   key.ProductID,
			ProductName: t.Name,
			ProductType: t.Category,
			UnitsSold:   t.Units,
			Revenue:     t.Revenue,
		})
	}

	rows := make([]models.ProductAttributionRow, 0, len(bySource))
	for sourceID, products := range bySource {
		sort.Slice(products, func(i, j int) bool {
			if products[i].Revenue != products[j].Revenue {
				return products[i].Revenue > products[j].Revenue
			}
			return products[i].ProductID < products[j].ProductID
		})

		row := models.ProductAttributionRow{
			CampaignID:   sourceID,
			CampaignName: "Unknown",
			Products:     products,
		}
		if src, ok := index[sourceID]; ok {
			row.CampaignName = src.Name
			row.SendTime = src.SendTime.UTC().Format("2006-01-02")
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CampaignID < rows[j].CampaignID })
	return rows
}
