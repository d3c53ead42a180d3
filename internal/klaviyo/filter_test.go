package klaviyo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterExpressions(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "equals(messages.channel,'email')", Equals("messages.channel", "email"))
	assert.Equal(t, `equals(metric_id,"M1")`, EqualsID("metric_id", "M1"))
	assert.Equal(t, "greater-or-equal(datetime,2024-01-01T00:00:00Z)", GreaterOrEqual("datetime", ts))
	assert.Equal(t, "less-than(datetime,2024-01-01T00:00:00Z)", LessThan("datetime", ts))
	assert.Equal(t,
		"equals(messages.channel,'email'),greater-or-equal(updated_at,2024-01-01T00:00:00Z)",
		Combine(Equals("messages.channel", "email"), GreaterOrEqual("updated_at", ts)),
	)
}

func TestFilterNormalizesToUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, est)
	assert.Equal(t, "greater-or-equal(datetime,2024-01-01T05:00:00Z)", GreaterOrEqual("datetime", ts))
}
