package attribution

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/metrics"
	"github.com/revlens/attribution/internal/models"
)

// HistoryLookup answers whether a profile has any purchase event under
// the given metric strictly before the given time. The API-backed
// implementation lives in internal/klaviyo; internal/cache wraps it with
// Redis so the N+1 lookup pattern can be swapped out behind this seam.
type HistoryLookup interface {
	HasPriorPurchase(ctx context.Context, profileID, metricID string, before time.Time) (bool, error)
}

// HistoryLookupFunc adapts a function to the HistoryLookup interface.
type HistoryLookupFunc func(ctx context.Context, profileID, metricID string, before time.Time) (bool, error)

func (f HistoryLookupFunc) HasPriorPurchase(ctx context.Context, profileID, metricID string, before time.Time) (bool, error) {
	return f(ctx, profileID, metricID, before)
}

// Classification marks one purchase as made by a new or returning customer.
type Classification struct {
	Purchase  models.Purchase
	Recurring bool
}

// Classifier annotates purchases as new or recurring. One history lookup
// is issued per purchase, so this is the dominant cost of the revenue
// split report; lookups run on a bounded pool of workers and a single
// collector folds the results.
type Classifier struct {
	lookup  HistoryLookup
	workers int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewClassifier constructs a Classifier with the given pool size.
func NewClassifier(lookup HistoryLookup, workers int, logger *zap.Logger, m *metrics.Metrics) *Classifier {
	if workers < 1 {
		workers = 1
	}
	return &Classifier{
		lookup:  lookup,
		workers: workers,
		logger:  logger,
		metrics: m,
	}
}

// Classify runs the history lookup for every purchase. Workers back off
// independently when throttled; a lookup failure defaults that one
// purchase to new, mirroring an empty prior-history response. On
// cancellation no new lookups are issued and the classifications
// collected so far are returned alongside ctx.Err(), so partial
// aggregation state stays usable.
func (c *Classifier) Classify(ctx context.Context, purchases []models.Purchase) ([]Classification, error) {
	if len(purchases) == 0 {
		return nil, nil
	}

	jobs := make(chan models.Purchase)
	results := make(chan Classification, len(purchases))

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				results <- c.classifyOne(ctx, p)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range purchases {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	classifications := make([]Classification, 0, len(purchases))
	for cl := range results {
		classifications = append(classifications, cl)
	}

	if err := ctx.Err(); err != nil {
		c.logger.Warn("classification cancelled",
			zap.Int("classified", len(classifications)),
			zap.Int("total", len(purchases)),
		)
		return classifications, err
	}
	return classifications, nil
}

func (c *Classifier) classifyOne(ctx context.Context, p models.Purchase) Classification {
	recurring, err := c.lookup.HasPriorPurchase(ctx, p.ProfileID, p.MetricID, p.Timestamp)
	if err != nil {
		// Record-local failure: treat as no prior history and move on.
		c.logger.Warn("history lookup failed, treating purchase as new",
			zap.String("profile_id", p.ProfileID),
			zap.String("order_id", p.OrderID),
			zap.Error(err),
		)
		c.count("error")
		return Classification{Purchase: p}
	}
	if recurring {
		c.count("recurring")
	} else {
		c.count("new")
	}
	return Classification{Purchase: p, Recurring: recurring}
}

func (c *Classifier) count(result string) {
	if c.metrics != nil {
		c.metrics.ClassifierLookups.WithLabelValues(result).Inc()
	}
}
