package attribution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/metrics"
	"github.com/revlens/attribution/internal/models"
)

// API is the slice of the analytics API the engine consumes. Implemented
// by *klaviyo.Client; faked in tests.
type API interface {
	ListCampaigns(ctx context.Context, since time.Time) ([]models.Source, error)
	ListFlows(ctx context.Context, since time.Time) ([]models.Source, error)
	MetricID(ctx context.Context, name string) (string, error)
	ListEvents(ctx context.Context, metricID string, since time.Time) ([]models.Event, error)
	AttributedRevenue(ctx context.Context, metricID string, start, end time.Time) (map[string]float64, error)
}

// Window is the reporting time window.
type Window struct {
	Start time.Time
	End   time.Time
}

// Engine orchestrates the attribution pipelines: fetch, dedup, classify,
// aggregate. Failures to obtain data are soft stops that yield whatever
// partial report is possible; only cancellation aborts a run.
type Engine struct {
	api        API
	classifier *Classifier
	metricName string
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewEngine constructs an Engine. metricName is the event type counted as
// a purchase, e.g. "Placed Order". metrics may be nil.
func NewEngine(api API, classifier *Classifier, metricName string, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		api:        api,
		classifier: classifier,
		metricName: metricName,
		logger:     logger,
		metrics:    m,
	}
}

// RevenueSplit computes per-source attributed revenue split between new
// and returning customers, one row per fetched campaign and flow.
func (e *Engine) RevenueSplit(ctx context.Context, w Window) (*models.RevenueSplitReport, error) {
	report := &models.RevenueSplitReport{ReportMeta: e.newMeta()}
	defer e.observe("revenue_split", time.Now())

	metricID, err := e.resolveMetric(ctx)
	if err != nil || metricID == "" {
		return report, err
	}

	sources, _, err := e.fetchSources(ctx, w.Start)
	if err != nil {
		return report, err
	}

	totals, err := e.api.AttributedRevenue(ctx, metricID, w.Start, w.End)
	if err != nil {
		if ctx.Err() != nil {
			return report, err
		}
		e.logger.Warn("attributed revenue totals unavailable", zap.Error(err))
		totals = nil
	}

	purchases, err := e.fetchPurchases(ctx, metricID, w.Start)
	if err != nil {
		return report, err
	}
	report.Purchases = purchases

	attributed := make([]models.Purchase, 0, len(purchases))
	for _, p := range purchases {
		if p.Attributed() {
			attributed = append(attributed, p)
		}
	}

	classifications, err := e.classifier.Classify(ctx, attributed)
	if err != nil {
		// Cancelled mid-classification: fold what we have and say so.
		report.Partial = true
	}

	report.Rows = buildRevenueSplitRows(sources, totals, foldRevenueSplit(classifications))
	e.finish("revenue_split", report.RunID, len(report.Rows), report.Partial)
	return report, nil
}

// ProductAttribution computes per-source product sales from the line
// items of attributed purchases.
func (e *Engine) ProductAttribution(ctx context.Context, w Window) (*models.ProductAttributionReport, error) {
	report := &models.ProductAttributionReport{ReportMeta: e.newMeta()}
	defer e.observe("product_attribution", time.Now())

	metricID, err := e.resolveMetric(ctx)
	if err != nil || metricID == "" {
		return report, err
	}

	_, index, err := e.fetchSources(ctx, w.Start)
	if err != nil {
		return report, err
	}

	purchases, err := e.fetchPurchases(ctx, metricID, w.Start)
	if err != nil {
		return report, err
	}
	report.Purchases = purchases

	report.Rows = buildProductRows(foldProducts(purchases), index)
	e.finish("product_attribution", report.RunID, len(report.Rows), false)
	return report, nil
}

// RevenueShare computes, per UTC calendar day, total shop revenue and the
// fraction of it attributed to marketing.
func (e *Engine) RevenueShare(ctx context.Context, w Window) (*models.RevenueShareReport, error) {
	report := &models.RevenueShareReport{ReportMeta: e.newMeta()}
	defer e.observe("revenue_share", time.Now())

	metricID, err := e.resolveMetric(ctx)
	if err != nil || metricID == "" {
		return report, err
	}

	purchases, err := e.fetchPurchases(ctx, metricID, w.Start)
	if err != nil {
		return report, err
	}
	report.Purchases = purchases

	report.Rows = buildRevenueShareRows(foldRevenueShare(purchases))
	e.finish("revenue_share", report.RunID, len(report.Rows), false)
	return report, nil
}

// resolveMetric looks up the purchase metric id. A missing metric or an
// unreachable metrics listing is a soft stop: the report stays empty.
func (e *Engine) resolveMetric(ctx context.Context) (string, error) {
	metricID, err := e.api.MetricID(ctx, e.metricName)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		e.logger.Warn("metrics listing unavailable", zap.Error(err))
		return "", nil
	}
	if metricID == "" {
		e.logger.Warn("purchase metric not found, producing empty report",
			zap.String("metric_name", e.metricName),
		)
		return "", nil
	}
	e.logger.Info("resolved purchase metric",
		zap.String("metric_name", e.metricName),
		zap.String("metric_id", metricID),
	)
	return metricID, nil
}

// fetchSources retrieves campaigns and flows, returning them both as an
// ordered list (campaigns first, the row order of the split report) and
// as a lookup table. Either listing failing soft-degrades to empty.
func (e *Engine) fetchSources(ctx context.Context, since time.Time) ([]models.Source, models.SourceIndex, error) {
	campaigns, err := e.api.ListCampaigns(ctx, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		e.logger.Warn("campaign listing unavailable", zap.Error(err))
	}
	flows, err := e.api.ListFlows(ctx, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		e.logger.Warn("flow listing unavailable", zap.Error(err))
	}

	e.logger.Info("fetched sources",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("flows", len(flows)),
	)

	sources := make([]models.Source, 0, len(campaigns)+len(flows))
	sources = append(sources, campaigns...)
	sources = append(sources, flows...)
	return sources, models.NewSourceIndex(campaigns, flows), nil
}

// fetchPurchases retrieves the window's events and deduplicates them into
// purchases.
func (e *Engine) fetchPurchases(ctx context.Context, metricID string, since time.Time) ([]models.Purchase, error) {
	events, err := e.api.ListEvents(ctx, metricID, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		e.logger.Warn("event listing unavailable", zap.Error(err))
	}

	purchases := Deduplicate(events)
	e.logger.Info("deduplicated events",
		zap.Int("events", len(events)),
		zap.Int("purchases", len(purchases)),
	)
	if e.metrics != nil {
		e.metrics.PurchasesDeduplicated.Add(float64(len(purchases)))
	}
	return purchases, nil
}

func (e *Engine) newMeta() models.ReportMeta {
	return models.ReportMeta{
		RunID:       uuid.New(),
		GeneratedAt: time.Now().UTC(),
	}
}

func (e *Engine) observe(report string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) finish(report string, runID uuid.UUID, rows int, partial bool) {
	e.logger.Info("report computed",
		zap.String("report", report),
		zap.String("run_id", runID.String()),
		zap.Int("rows", rows),
		zap.Bool("partial", partial),
	)
	if e.metrics != nil {
		e.metrics.ReportRows.WithLabelValues(report).Set(float64(rows))
	}
}
