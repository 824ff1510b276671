// Package telemetry records local search query metrics: scope usage,
// latency distribution, frequent terms, and queries that found nothing.
// Everything stays on disk next to the stores; nothing is reported
// anywhere.
package telemetry

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docufind/docufind/internal/store"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one federated search, as seen by the metrics collector.
type QueryEvent struct {
	Query       string
	Scope       store.Scope
	ResultCount int
	StoresAsked int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the query found nothing anywhere.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffer contents, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// ExtractTerms pulls countable terms from a query string, using the same
// normalization the word-frequency index applies to document content.
func ExtractTerms(query string) []string {
	return store.NormalizeWords(query, store.BuildStopWordMap(store.DefaultStopWords))
}

// TermCount is a query term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected query metrics.
type Snapshot struct {
	ScopeCounts         map[store.Scope]int64   `json:"scope_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries that found nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// MetricsStore defines persistence for query metrics.
type MetricsStore interface {
	SaveScopeCounts(date string, counts map[store.Scope]int64) error
	GetScopeCounts(from, to string) (map[store.Scope]int64, error)
	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)
	AddZeroResultQuery(query string, timestamp time.Time) error
	GetZeroResultQueries(limit int) ([]string, error)
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)
	Close() error
}

// CollectorConfig tunes the in-memory collector.
type CollectorConfig struct {
	TopTermsCapacity    int           // max distinct terms tracked
	ZeroResultsCapacity int           // max zero-result queries kept
	FlushInterval       time.Duration // 0 disables auto-flush
}

// DefaultCollectorConfig returns sensible defaults.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		FlushInterval:       60 * time.Second,
	}
}

// Collector aggregates query events in memory and periodically flushes
// them to a MetricsStore. Safe for concurrent use.
type Collector struct {
	mu sync.RWMutex

	scopes          map[store.Scope]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	store       MetricsStore
	config      CollectorConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewCollector creates a collector with default configuration. A nil
// store keeps metrics in memory only.
func NewCollector(ms MetricsStore) *Collector {
	return NewCollectorWithConfig(ms, DefaultCollectorConfig())
}

// NewCollectorWithConfig creates a collector with custom configuration.
func NewCollectorWithConfig(ms MetricsStore, cfg CollectorConfig) *Collector {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	c := &Collector{
		scopes:      make(map[store.Scope]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
		store:       ms,
		config:      cfg,
		stopCh:      make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && ms != nil {
		c.flushTicker = time.NewTicker(cfg.FlushInterval)
		go c.flushLoop()
	}
	return c
}

// Record ingests one query event.
func (c *Collector) Record(e QueryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	scope := e.Scope
	if scope == "" {
		scope = store.ScopeAll
	}
	c.scopes[scope]++
	c.latencies[LatencyToBucket(e.Latency)]++
	c.totalQueries++

	for _, term := range ExtractTerms(e.Query) {
		count, _ := c.topTerms.Get(term)
		c.topTerms.Add(term, count+1)
	}

	if e.IsZeroResult() {
		c.zeroResultCount++
		c.zeroResults.Add(e.Query)
	}
}

// Snapshot returns a copy of the current in-memory metrics.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scopes := make(map[store.Scope]int64, len(c.scopes))
	for k, v := range c.scopes {
		scopes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(c.latencies))
	for k, v := range c.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, c.topTerms.Len())
	for _, term := range c.topTerms.Keys() {
		if count, ok := c.topTerms.Peek(term); ok {
			terms = append(terms, TermCount{Term: term, Count: count})
		}
	}
	sortTermCounts(terms)

	return &Snapshot{
		ScopeCounts:         scopes,
		TopTerms:            terms,
		ZeroResultQueries:   c.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        c.totalQueries,
		ZeroResultCount:     c.zeroResultCount,
		Since:               c.startTime,
	}
}

// Flush persists the in-memory aggregates and resets the daily counters.
// Term and zero-result data accumulate in the store.
func (c *Collector) Flush() error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	scopes := c.scopes
	latencies := c.latencies
	zeroResults := c.zeroResults.Items()
	terms := make(map[string]int64, c.topTerms.Len())
	for _, term := range c.topTerms.Keys() {
		if count, ok := c.topTerms.Peek(term); ok {
			terms[term] = count
		}
	}
	c.scopes = make(map[store.Scope]int64)
	c.latencies = make(map[LatencyBucket]int64)
	c.zeroResults.Clear()
	c.topTerms.Purge()
	c.mu.Unlock()

	date := time.Now().Format("2006-01-02")
	if err := c.store.SaveScopeCounts(date, scopes); err != nil {
		return err
	}
	if err := c.store.SaveLatencyCounts(date, latencies); err != nil {
		return err
	}
	if err := c.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	for _, q := range zeroResults {
		if err := c.store.AddZeroResultQuery(q, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the flush loop, flushes once more, and marks the collector
// closed. Further Records are dropped.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.flushTicker != nil {
		c.flushTicker.Stop()
		close(c.stopCh)
	}
	return c.Flush()
}

func (c *Collector) flushLoop() {
	for {
		select {
		case <-c.flushTicker.C:
			_ = c.Flush()
		case <-c.stopCh:
			return
		}
	}
}

func sortTermCounts(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}
