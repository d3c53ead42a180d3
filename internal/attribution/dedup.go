package attribution

import (
	"github.com/revlens/attribution/internal/models"
)

// Deduplicate collapses event records that reference the same order into
// one Purchase, keeping the first-seen record's content. Input order
// decides which record wins. Events without an order id cannot be
// meaningfully compared, so each one stays its own purchase.
func Deduplicate(events []models.Event) []models.Purchase {
	purchases := make([]models.Purchase, 0, len(events))
	seen := make(map[string]struct{}, len(events))

	for _, e := range events {
		if e.OrderID != "" {
			if _, dup := seen[e.OrderID]; dup {
				continue
			}
			seen[e.OrderID] = struct{}{}
		}
		purchases = append(purchases, models.PurchaseFromEvent(e))
	}
	return purchases
}
