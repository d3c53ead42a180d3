package attribution

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/models"
)

// historyFromEvents builds a lookup over a fixed per-profile event history,
// the way the real lookup consults the account's full event stream.
func historyFromEvents(history map[string][]time.Time) HistoryLookup {
	return HistoryLookupFunc(func(ctx context.Context, profileID, metricID string, before time.Time) (bool, error) {
		for _, ts := range history[profileID] {
			if ts.Before(before) {
				return true, nil
			}
		}
		return false, nil
	})
}

func TestClassifySecondPurchaseIsRecurring(t *testing.T) {
	t1 := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 1, 0)
	lookup := historyFromEvents(map[string][]time.Time{"A": {t1, t2}})

	c := NewClassifier(lookup, 4, zap.NewNop(), nil)
	got, err := c.Classify(context.Background(), []models.Purchase{
		{OrderID: "O1", ProfileID: "A", Timestamp: t1},
		{OrderID: "O2", ProfileID: "A", Timestamp: t2},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	byOrder := make(map[string]bool)
	for _, cl := range got {
		byOrder[cl.Purchase.OrderID] = cl.Recurring
	}
	assert.False(t, byOrder["O1"], "first purchase must be new")
	assert.True(t, byOrder["O2"], "purchase after T1 must be recurring")
}

func TestClassifySolePurchaseIsNew(t *testing.T) {
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	lookup := historyFromEvents(map[string][]time.Time{"B": {ts}})

	c := NewClassifier(lookup, 1, zap.NewNop(), nil)
	got, err := c.Classify(context.Background(), []models.Purchase{
		{OrderID: "O1", ProfileID: "B", Timestamp: ts},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Recurring)
}

func TestClassifyLookupErrorDefaultsToNew(t *testing.T) {
	lookup := HistoryLookupFunc(func(context.Context, string, string, time.Time) (bool, error) {
		return false, errors.New("boom")
	})

	c := NewClassifier(lookup, 2, zap.NewNop(), nil)
	got, err := c.Classify(context.Background(), []models.Purchase{
		{OrderID: "O1", ProfileID: "A"},
		{OrderID: "O2", ProfileID: "B"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, cl := range got {
		assert.False(t, cl.Recurring)
	}
}

func TestClassifyManyPurchasesBoundedPool(t *testing.T) {
	var inFlight, peak atomic.Int32
	lookup := HistoryLookupFunc(func(context.Context, string, string, time.Time) (bool, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return true, nil
	})

	c := NewClassifier(lookup, 5, zap.NewNop(), nil)
	purchases := make([]models.Purchase, 100)
	for i := range purchases {
		purchases[i] = models.Purchase{OrderID: string(rune('a' + i%26))}
	}

	got, err := c.Classify(context.Background(), purchases)
	require.NoError(t, err)
	assert.Len(t, got, 100)
	assert.LessOrEqual(t, peak.Load(), int32(5), "no more than 5 concurrent lookups")
}

func TestClassifyCancellationKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	lookup := HistoryLookupFunc(func(context.Context, string, string, time.Time) (bool, error) {
		if calls.Add(1) == 3 {
			cancel()
		}
		return false, nil
	})

	c := NewClassifier(lookup, 1, zap.NewNop(), nil)
	purchases := make([]models.Purchase, 50)
	got, err := c.Classify(ctx, purchases)

	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, len(got), 3, "work done before cancellation is kept")
	assert.Less(t, len(got), 50, "no new lookups after cancellation")
}
