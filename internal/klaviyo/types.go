package klaviyo

import (
	"time"

	"github.com/revlens/attribution/internal/models"
)

// Raw JSON:API record shapes. These stay private to the package; the rest
// of the engine works with the flattened types in internal/models.

type idRef struct {
	ID string `json:"id"`
}

type eventRecord struct {
	ID         string `json:"id"`
	Attributes struct {
		Datetime   time.Time       `json:"datetime"`
		Properties eventProperties `json:"properties"`
	} `json:"attributes"`
	Relationships struct {
		Metric struct {
			Data idRef `json:"data"`
		} `json:"metric"`
		Profile struct {
			Data idRef `json:"data"`
		} `json:"profile"`
	} `json:"relationships"`
}

type eventProperties struct {
	Value             float64      `json:"$value"`
	AttributedMessage string       `json:"$attributed_message"`
	AttributedFlow    string       `json:"$attributed_flow"`
	OrderID           string       `json:"OrderId"`
	Items             []itemRecord `json:"Items"`
}

type itemRecord struct {
	ProductID   string   `json:"ProductID"`
	ProductName string   `json:"ProductName"`
	Categories  []string `json:"Categories"`
	ItemPrice   float64  `json:"ItemPrice"`
	Quantity    float64  `json:"Quantity"`
}

// toEvent flattens a raw event record. The attribution reference is the
// attributed campaign message if present, else the attributed flow.
func (r eventRecord) toEvent() models.Event {
	props := r.Attributes.Properties

	sourceID := props.AttributedMessage
	if sourceID == "" {
		sourceID = props.AttributedFlow
	}

	items := make([]models.LineItem, 0, len(props.Items))
	for _, it := range props.Items {
		category := ""
		if len(it.Categories) > 0 {
			category = it.Categories[0]
		}
		items = append(items, models.LineItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Category:    category,
			UnitPrice:   it.ItemPrice,
			Quantity:    int(it.Quantity),
		})
	}

	return models.Event{
		ID:        r.ID,
		Timestamp: r.Attributes.Datetime,
		MetricID:  r.Relationships.Metric.Data.ID,
		ProfileID: r.Relationships.Profile.Data.ID,
		SourceID:  sourceID,
		OrderID:   props.OrderID,
		Value:     props.Value,
		Items:     items,
	}
}

type sourceRecord struct {
	ID         string `json:"id"`
	Attributes struct {
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"attributes"`
}

type metricRecord struct {
	ID         string `json:"id"`
	Attributes struct {
		Name string `json:"name"`
	} `json:"attributes"`
}

// aggregateData is the metric-aggregates response payload: one bucket per
// attribution dimension value, with the summed measurement.
type aggregateData struct {
	Attributes struct {
		Data []aggregateBucket `json:"data"`
	} `json:"attributes"`
}

type aggregateBucket struct {
	Dimensions   []string             `json:"dimensions"`
	Measurements map[string][]float64 `json:"measurements"`
}
