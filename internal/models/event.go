package models

import (
	"time"
)

// ===========================================
// PURCHASE EVENT
// ===========================================

// Event is a single "Placed Order" metric event as returned by the
// analytics API, flattened out of its JSON:API envelope. Events are
// immutable once fetched and live only for the duration of one report run.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Scoping
	MetricID  string `json:"metric_id"`
	ProfileID string `json:"profile_id"`

	// SourceID is the campaign or flow credited with the purchase.
	// Empty means the purchase is unattributed.
	SourceID string `json:"source_id,omitempty"`

	// Order info. OrderID may repeat across event records that describe
	// the same underlying order.
	OrderID string     `json:"order_id,omitempty"`
	Value   float64    `json:"value"`
	Items   []LineItem `json:"items,omitempty"`
}

// Attributed reports whether the event carries an attribution reference.
func (e Event) Attributed() bool {
	return e.SourceID != ""
}

// LineItem is one product line of an order.
type LineItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Category    string  `json:"category,omitempty"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
}

// ===========================================
// PURCHASE (deduplicated order)
// ===========================================

// Purchase is one logical order: the first-seen event record per distinct
// order id. No two purchases share an order id.
type Purchase struct {
	OrderID   string     `json:"order_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	MetricID  string     `json:"metric_id"`
	ProfileID string     `json:"profile_id"`
	SourceID  string     `json:"source_id,omitempty"`
	Value     float64    `json:"value"`
	Items     []LineItem `json:"items,omitempty"`
}

// Attributed reports whether the purchase carries an attribution reference.
func (p Purchase) Attributed() bool {
	return p.SourceID != ""
}

// PurchaseFromEvent derives a Purchase from its first-seen event record.
func PurchaseFromEvent(e Event) Purchase {
	return Purchase{
		OrderID:   e.OrderID,
		Timestamp: e.Timestamp,
		MetricID:  e.MetricID,
		ProfileID: e.ProfileID,
		SourceID:  e.SourceID,
		Value:     e.Value,
		Items:     e.Items,
	}
}
