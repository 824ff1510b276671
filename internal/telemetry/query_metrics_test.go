package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docufind/docufind/internal/store"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{d: 3 * time.Millisecond, want: BucketP10},
		{d: 25 * time.Millisecond, want: BucketP50},
		{d: 80 * time.Millisecond, want: BucketP100},
		{d: 200 * time.Millisecond, want: BucketP500},
		{d: 2 * time.Second, want: BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), "duration %v", tt.d)
	}
}

func TestCircularBuffer(t *testing.T) {
	b := NewCircularBuffer[string](3)
	assert.Equal(t, 0, b.Size())

	b.Add("a")
	b.Add("b")
	assert.Equal(t, []string{"a", "b"}, b.Items())

	b.Add("c")
	b.Add("d") // evicts "a"
	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []string{"b", "c", "d"}, b.Items())

	b.Clear()
	assert.Equal(t, 0, b.Size())
}

func TestExtractTerms(t *testing.T) {
	terms := ExtractTerms("The Quarterly REVENUE on budget")
	assert.Equal(t, []string{"quarterly", "revenue", "budget"}, terms,
		"stop words and short words are dropped, case is folded")
}

func TestCollectorRecordAndSnapshot(t *testing.T) {
	c := NewCollectorWithConfig(nil, CollectorConfig{FlushInterval: 0})
	defer c.Close()

	c.Record(QueryEvent{Query: "revenue forecast", Scope: store.ScopeContent, ResultCount: 5, Latency: 4 * time.Millisecond})
	c.Record(QueryEvent{Query: "revenue summary", Scope: store.ScopeContent, ResultCount: 2, Latency: 30 * time.Millisecond})
	c.Record(QueryEvent{Query: "missing thing", ResultCount: 0, Latency: 4 * time.Millisecond})

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.ScopeCounts[store.ScopeContent])
	assert.Equal(t, int64(1), snap.ScopeCounts[store.ScopeAll], "empty scope counts as all")
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"missing thing"}, snap.ZeroResultQueries)
	assert.InDelta(t, 33.3, snap.ZeroResultPercentage(), 0.1)

	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "revenue", snap.TopTerms[0].Term)
	assert.Equal(t, int64(2), snap.TopTerms[0].Count)
}

func TestCollectorFlushPersists(t *testing.T) {
	ms, err := OpenMetricsStore(t.TempDir())
	require.NoError(t, err)
	defer ms.Close()

	c := NewCollectorWithConfig(ms, CollectorConfig{FlushInterval: 0})
	c.Record(QueryEvent{Query: "quarterly revenue", Scope: store.ScopeName, ResultCount: 1, Latency: 12 * time.Millisecond})
	c.Record(QueryEvent{Query: "nothing here", ResultCount: 0, Latency: 2 * time.Millisecond})
	require.NoError(t, c.Flush())

	// Flushing resets the in-memory aggregates.
	snap := c.Snapshot()
	assert.Empty(t, snap.ScopeCounts)
	assert.Empty(t, snap.TopTerms)

	today := time.Now().Format("2006-01-02")
	scopes, err := ms.GetScopeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), scopes[store.ScopeName])
	assert.Equal(t, int64(1), scopes[store.ScopeAll])

	terms, err := ms.GetTopTerms(10)
	require.NoError(t, err)
	assert.NotEmpty(t, terms)

	zero, err := ms.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"nothing here"}, zero)

	latencies, err := ms.GetLatencyCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latencies[BucketP50])
	assert.Equal(t, int64(1), latencies[BucketP10])
}

func TestCollectorClosedDropsEvents(t *testing.T) {
	c := NewCollectorWithConfig(nil, CollectorConfig{FlushInterval: 0})
	require.NoError(t, c.Close())

	c.Record(QueryEvent{Query: "after close", ResultCount: 1})
	assert.Equal(t, int64(0), c.Snapshot().TotalQueries)
}
