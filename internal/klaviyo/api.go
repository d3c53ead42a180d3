package klaviyo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/models"
)

// Typed operations over the raw client. Each paginated listing tolerates
// a malformed record by skipping it: one bad record never aborts a report.

// ListCampaigns returns email-channel campaigns updated since the given time.
func (c *Client) ListCampaigns(ctx context.Context, since time.Time) ([]models.Source, error) {
	filter := Combine(
		Equals("messages.channel", "email"),
		GreaterOrEqual("updated_at", since),
	)
	records, err := c.FetchAll(ctx, "campaigns", map[string]string{"filter": filter})
	if err != nil {
		return nil, err
	}
	return c.decodeSources(records, models.SourceTypeCampaign), nil
}

// ListFlows returns flows updated since the given time.
func (c *Client) ListFlows(ctx context.Context, since time.Time) ([]models.Source, error) {
	query := map[string]string{
		"filter": GreaterOrEqual("updated", since),
		"sort":   "updated",
	}
	records, err := c.FetchAll(ctx, "flows", query)
	if err != nil {
		return nil, err
	}
	return c.decodeSources(records, models.SourceTypeFlow), nil
}

func (c *Client) decodeSources(records []json.RawMessage, typ models.SourceType) []models.Source {
	sources := make([]models.Source, 0, len(records))
	for _, raw := range records {
		var rec sourceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn("skipping malformed source record",
				zap.String("type", string(typ)),
				zap.Error(err),
			)
			continue
		}
		if rec.ID == "" {
			continue
		}
		sendTime := rec.Attributes.CreatedAt
		if typ == models.SourceTypeFlow {
			sendTime = rec.Attributes.UpdatedAt
		}
		sources = append(sources, models.Source{
			ID:       rec.ID,
			Name:     rec.Attributes.Name,
			Type:     typ,
			SendTime: sendTime,
		})
	}
	return sources
}

// MetricID resolves a metric name (e.g. "Placed Order") to its id.
// Returns ("", nil) when the account has no such metric.
func (c *Client) MetricID(ctx context.Context, name string) (string, error) {
	records, err := c.FetchAll(ctx, "metrics", nil)
	if err != nil {
		return "", err
	}
	for _, raw := range records {
		var rec metricRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn("skipping malformed metric record", zap.Error(err))
			continue
		}
		if rec.Attributes.Name == name {
			return rec.ID, nil
		}
	}
	return "", nil
}

// ListEvents returns all events for the given metric since the given time.
// The events endpoint cannot filter by metric, so records are filtered
// client-side on their metric relationship.
func (c *Client) ListEvents(ctx context.Context, metricID string, since time.Time) ([]models.Event, error) {
	query := map[string]string{"filter": GreaterOrEqual("datetime", since)}
	records, err := c.FetchAll(ctx, "events", query)
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(records))
	for _, raw := range records {
		var rec eventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn("skipping malformed event record", zap.Error(err))
			continue
		}
		if rec.Relationships.Metric.Data.ID != metricID {
			continue
		}
		events = append(events, rec.toEvent())
	}

	c.logger.Info("fetched purchase events",
		zap.Int("total_records", len(records)),
		zap.Int("matching_metric", len(events)),
	)
	if c.metrics != nil {
		c.metrics.EventsFetched.Add(float64(len(events)))
	}
	return events, nil
}

// AttributedRevenue sums the metric's value over the window, grouped by
// attribution dimension. The result maps source id to total revenue.
func (c *Client) AttributedRevenue(ctx context.Context, metricID string, start, end time.Time) (map[string]float64, error) {
	body := map[string]any{
		"data": map[string]any{
			"type": "metric-aggregate",
			"attributes": map[string]any{
				"measurements": []string{"sum_value"},
				"filter": []string{
					GreaterOrEqual("datetime", start),
					LessThan("datetime", end),
				},
				"by":        []string{"$attributed_message", "$attributed_flow"},
				"metric_id": metricID,
			},
		},
	}

	page, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "metric-aggregates",
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	var data aggregateData
	if err := json.Unmarshal(page.Data, &data); err != nil {
		return nil, fmt.Errorf("klaviyo: decode metric aggregates: %w", err)
	}

	totals := make(map[string]float64, len(data.Attributes.Data))
	for _, bucket := range data.Attributes.Data {
		sourceID := ""
		for _, dim := range bucket.Dimensions {
			if dim != "" {
				sourceID = dim
				break
			}
		}
		if sourceID == "" {
			continue
		}
		if sums := bucket.Measurements["sum_value"]; len(sums) > 0 {
			totals[sourceID] += sums[0]
		}
	}
	return totals, nil
}

// HasPriorPurchase reports whether the profile has any event under the
// metric strictly before the given time. Only presence matters, so a
// single-record page is requested and pagination never continues.
func (c *Client) HasPriorPurchase(ctx context.Context, profileID, metricID string, before time.Time) (bool, error) {
	query := map[string]string{
		"filter": Combine(
			EqualsID("metric_id", metricID),
			LessThan("datetime", before),
		),
		"page[size]": "1",
	}
	page, err := c.Do(ctx, Request{
		Path:  fmt.Sprintf("profiles/%s/events", profileID),
		Query: query,
	})
	if err != nil {
		return false, err
	}
	return len(page.Records()) > 0, nil
}
