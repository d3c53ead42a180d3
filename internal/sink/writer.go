package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/models"
)

// Writer serializes report rows to CSV and JSON files in a directory.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter constructs a Writer targeting the given directory.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// WriteRevenueSplit writes revenue_attribution_results.{csv,json}.
func (w *Writer) WriteRevenueSplit(rows []models.RevenueSplitRow) error {
	if err := w.writeJSON("revenue_attribution_results.json", rows); err != nil {
		return err
	}

	records := [][]string{{
		"campaign_id", "campaign_name", "send_time",
		"total_attributed_revenue", "new_customers_revenue", "recurring_customers_revenue",
	}}
	for _, r := range rows {
		records = append(records, []string{
			r.CampaignID, r.CampaignName, r.SendTime,
			formatMoney(r.TotalAttributedRevenue),
			formatMoney(r.NewCustomersRevenue),
			formatMoney(r.RecurringCustomersRevenue),
		})
	}
	return w.writeCSV("revenue_attribution_results.csv", records)
}

// WriteProductAttribution writes product_attribution_results.{csv,json}.
// The nested product list is embedded as JSON in the CSV column.
func (w *Writer) WriteProductAttribution(rows []models.ProductAttributionRow) error {
	if err := w.writeJSON("product_attribution_results.json", rows); err != nil {
		return err
	}

	records := [][]string{{"campaign_id", "campaign_name", "send_time", "products"}}
	for _, r := range rows {
		products, err := json.Marshal(r.Products)
		if err != nil {
			return fmt.Errorf("sink: encode products for %s: %w", r.CampaignID, err)
		}
		records = append(records, []string{r.CampaignID, r.CampaignName, r.SendTime, string(products)})
	}
	return w.writeCSV("product_attribution_results.csv", records)
}

// WriteRevenueShare writes revenue_share_results.{csv,json}.
func (w *Writer) WriteRevenueShare(rows []models.RevenueShareRow) error {
	if err := w.writeJSON("revenue_share_results.json", rows); err != nil {
		return err
	}

	records := [][]string{{"date", "total_shop_revenue", "attributed_revenue", "revenue_share"}}
	for _, r := range rows {
		records = append(records, []string{
			r.Date,
			formatMoney(r.TotalShopRevenue),
			formatMoney(r.AttributedRevenue),
			formatMoney(r.RevenueSharePct),
		})
	}
	return w.writeCSV("revenue_share_results.csv", records)
}

func (w *Writer) writeJSON(name string, rows any) error {
	path := filepath.Join(w.dir, name)
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: encode %s: %w", name, err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("sink: write %s: %w", name, err)
	}
	w.logger.Info("report written", zap.String("path", path))
	return nil
}

func (w *Writer) writeCSV(name string, records [][]string) error {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sink: create %s: %w", name, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("sink: write %s: %w", name, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("sink: flush %s: %w", name, err)
	}

	w.logger.Info("report written", zap.String("path", path))
	return nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
