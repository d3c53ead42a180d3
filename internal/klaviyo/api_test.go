package klaviyo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revlens/attribution/internal/models"
)

const eventPage = `{
	"data": [
		{
			"id": "ev1",
			"attributes": {
				"datetime": "2025-06-01T10:00:00Z",
				"properties": {
					"$value": 100.0,
					"$attributed_message": "C1",
					"OrderId": "O1",
					"Items": [
						{"ProductID": "P1", "ProductName": "Mug", "Categories": ["Kitchen"], "ItemPrice": 50.0, "Quantity": 2}
					]
				}
			},
			"relationships": {
				"metric": {"data": {"id": "M1"}},
				"profile": {"data": {"id": "A"}}
			}
		},
		{
			"id": "ev2",
			"attributes": {
				"datetime": "2025-06-01T11:00:00Z",
				"properties": {"$value": 5.0, "$attributed_flow": "F1"}
			},
			"relationships": {
				"metric": {"data": {"id": "OTHER"}},
				"profile": {"data": {"id": "B"}}
			}
		},
		"not an object"
	],
	"links": {"next": null}
}`

func TestListEventsFiltersByMetricAndSkipsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("filter"), "greater-or-equal(datetime,")
		fmt.Fprint(w, eventPage)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	events, err := c.ListEvents(context.Background(), "M1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1, "other metrics and malformed records are dropped")

	e := events[0]
	assert.Equal(t, "ev1", e.ID)
	assert.Equal(t, "A", e.ProfileID)
	assert.Equal(t, "C1", e.SourceID)
	assert.Equal(t, "O1", e.OrderID)
	assert.InDelta(t, 100, e.Value, 1e-9)
	require.Len(t, e.Items, 1)
	assert.Equal(t, "Kitchen", e.Items[0].Category)
	assert.Equal(t, 2, e.Items[0].Quantity)
}

func TestListCampaignsFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		assert.Contains(t, filter, "equals(messages.channel,'email')")
		assert.Contains(t, filter, "greater-or-equal(updated_at,")
		fmt.Fprint(w, `{
			"data": [{"id": "C1", "attributes": {"name": "Launch", "created_at": "2025-02-01T00:00:00Z", "updated_at": "2025-02-02T00:00:00Z"}}],
			"links": {"next": null}
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	campaigns, err := c.ListCampaigns(context.Background(), time.Now().AddDate(0, 0, -365))
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, models.SourceTypeCampaign, campaigns[0].Type)
	// Campaigns expose their creation time.
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), campaigns[0].SendTime)
}

func TestListFlowsUsesUpdatedAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		fmt.Fprint(w, `{
			"data": [{"id": "F1", "attributes": {"name": "Welcome", "created_at": "2025-01-01T00:00:00Z", "updated_at": "2025-03-01T00:00:00Z"}}],
			"links": {"next": null}
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	flows, err := c.ListFlows(context.Background(), time.Now().AddDate(0, 0, -365))
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, models.SourceTypeFlow, flows[0].Type)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), flows[0].SendTime)
}

func TestMetricID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": [
				{"id": "M0", "attributes": {"name": "Opened Email"}},
				{"id": "M1", "attributes": {"name": "Placed Order"}}
			],
			"links": {"next": null}
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	id, err := c.MetricID(context.Background(), "Placed Order")
	require.NoError(t, err)
	assert.Equal(t, "M1", id)

	id, err = c.MetricID(context.Background(), "Refunded Order")
	require.NoError(t, err)
	assert.Empty(t, id, "missing metric is not an error")
}

func TestAttributedRevenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/metric-aggregates", r.URL.Path)
		fmt.Fprint(w, `{
			"data": {
				"attributes": {
					"data": [
						{"dimensions": ["C1", ""], "measurements": {"sum_value": [150.0]}},
						{"dimensions": ["", "F1"], "measurements": {"sum_value": [40.0]}},
						{"dimensions": ["", ""], "measurements": {"sum_value": [999.0]}}
					]
				}
			}
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	totals, err := c.AttributedRevenue(context.Background(), "M1",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.InDelta(t, 150, totals["C1"], 1e-9)
	assert.InDelta(t, 40, totals["F1"], 1e-9)
	assert.Len(t, totals, 2, "fully-empty dimension buckets are dropped")
}

func TestHasPriorPurchase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profiles/A/events", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page[size]"), "presence check needs a single record")
		filter := r.URL.Query().Get("filter")
		assert.Contains(t, filter, `equals(metric_id,"M1")`)
		assert.Contains(t, filter, "less-than(datetime,")
		fmt.Fprint(w, `{"data": [{"id": "old"}], "links": {"next": "ignored"}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	prior, err := c.HasPriorPurchase(context.Background(), "A", "M1", time.Now())
	require.NoError(t, err)
	assert.True(t, prior)
}

func TestHasPriorPurchaseEmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [], "links": {"next": null}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	prior, err := c.HasPriorPurchase(context.Background(), "A", "M1", time.Now())
	require.NoError(t, err)
	assert.False(t, prior)
}
