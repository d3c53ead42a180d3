package models

import (
	"time"

	"github.com/google/uuid"
)

// ===========================================
// REVENUE SPLIT
// ===========================================

// RevenueSplitRow is one source's attributed revenue, split between new
// and returning customers.
type RevenueSplitRow struct {
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	SendTime     string `json:"send_time"`

	TotalAttributedRevenue    float64 `json:"total_attributed_revenue"`
	NewCustomersRevenue       float64 `json:"new_customers_revenue"`
	RecurringCustomersRevenue float64 `json:"recurring_customers_revenue"`
}

// ===========================================
// PRODUCT ATTRIBUTION
// ===========================================

// ProductStat is a per-product subtotal within one source's row.
type ProductStat struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	ProductType string  `json:"product_type"`
	UnitsSold   int     `json:"units_sold"`
	Revenue     float64 `json:"revenue"`
}

// ProductAttributionRow lists the products sold through one source.
type ProductAttributionRow struct {
	CampaignID   string        `json:"campaign_id"`
	CampaignName string        `json:"campaign_name"`
	SendTime     string        `json:"send_time"`
	Products     []ProductStat `json:"products"`
}

// ===========================================
// DAILY REVENUE SHARE
// ===========================================

// RevenueShareRow is one calendar day's total shop revenue and the
// fraction of it attributable to marketing.
type RevenueShareRow struct {
	Date              string  `json:"date"`
	TotalShopRevenue  float64 `json:"total_shop_revenue"`
	AttributedRevenue float64 `json:"attributed_revenue"`
	RevenueSharePct   float64 `json:"revenue_share"`
}

// ===========================================
// REPORTS
// ===========================================

// ReportMeta carries run-level information common to all three reports.
type ReportMeta struct {
	RunID       uuid.UUID `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	// Partial is set when the run was cancelled mid-classification and
	// the rows reflect only the work completed up to that point.
	Partial bool `json:"partial,omitempty"`
}

// RevenueSplitReport is the output of the revenue split pipeline.
type RevenueSplitReport struct {
	ReportMeta
	Rows      []RevenueSplitRow `json:"rows"`
	Purchases []Purchase        `json:"-"`
}

// ProductAttributionReport is the output of the product attribution pipeline.
type ProductAttributionReport struct {
	ReportMeta
	Rows      []ProductAttributionRow `json:"rows"`
	Purchases []Purchase              `json:"-"`
}

// RevenueShareReport is the output of the daily revenue share pipeline.
type RevenueShareReport struct {
	ReportMeta
	Rows      []RevenueShareRow `json:"rows"`
	Purchases []Purchase        `json:"-"`
}
