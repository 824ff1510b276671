// Package scheduler runs indexing across several collection roots at
// once. It sizes a small pool of collection workers, divides the
// machine's cores between them, and feeds roots through a shared channel
// so an early finisher immediately steals the next pending collection.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/docufind/docufind/internal/indexer"
)

// IndexFunc indexes one collection root using at most the given number of
// extraction workers. The scheduler supplies the per-collection core
// budget; the callee owns registry resolution and store lifetime.
type IndexFunc func(ctx context.Context, root string, workers int) (*indexer.Summary, error)

// Outcome is the result of one collection's indexing run. Exactly one
// Outcome is emitted per submitted root, failures included.
type Outcome struct {
	Root    string
	Summary indexer.Summary
	Err     error
}

// PoolSize returns how many collections to index concurrently: one worker
// per root, capped at a quarter of the cores but never below 2 so two
// small collections always overlap.
func PoolSize(roots, cpus int) int {
	size := cpus / 4
	if size < 2 {
		size = 2
	}
	if roots < size {
		size = roots
	}
	if size < 1 {
		size = 1
	}
	return size
}

// WorkersPerCollection divides the cores between concurrent collections
// so nested extraction pools do not oversubscribe the machine.
func WorkersPerCollection(cpus, poolSize int) int {
	if poolSize < 1 {
		poolSize = 1
	}
	n := cpus / poolSize
	if n < 1 {
		n = 1
	}
	return n
}

// Scheduler fans indexing out over collection roots.
type Scheduler struct {
	index IndexFunc
	log   *slog.Logger
}

// New creates a scheduler that indexes each root with the given function.
func New(index IndexFunc, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{index: index, log: log}
}

// Run indexes all roots and returns a channel of outcomes in completion
// order. The channel carries exactly one outcome per root and is closed
// when the last collection finishes. One collection's failure never
// blocks or cancels the others.
func (s *Scheduler) Run(ctx context.Context, roots []string) <-chan Outcome {
	cpus := runtime.NumCPU()
	poolSize := PoolSize(len(roots), cpus)
	workers := WorkersPerCollection(cpus, poolSize)

	s.log.Info("collection_schedule_started",
		slog.Int("collections", len(roots)),
		slog.Int("pool_size", poolSize),
		slog.Int("workers_per_collection", workers))

	pending := make(chan string, len(roots))
	for _, root := range roots {
		pending <- root
	}
	close(pending)

	outcomes := make(chan Outcome, len(roots))
	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for root := range pending {
				outcomes <- s.runOne(ctx, root, workers)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	return outcomes
}

// runOne indexes a single root, converting a panic in the index function
// into that collection's error so the remaining roots still run.
func (s *Scheduler) runOne(ctx context.Context, root string, workers int) (out Outcome) {
	out.Root = root
	defer func() {
		if r := recover(); r != nil {
			out.Err = &panicError{root: root, value: r}
			s.log.Error("collection_indexing_crashed",
				slog.String("root", root), slog.Any("panic", r))
		}
	}()

	summary, err := s.index(ctx, root, workers)
	if err != nil {
		out.Err = err
		s.log.Warn("collection_indexing_failed",
			slog.String("root", root), slog.String("error", err.Error()))
		return out
	}
	out.Summary = *summary
	s.log.Info("collection_indexed",
		slog.String("root", root),
		slog.Int("indexed", summary.Indexed),
		slog.Int("errored", summary.Errored),
		slog.Int("skipped", summary.Skipped))
	return out
}

type panicError struct {
	root  string
	value any
}

func (e *panicError) Error() string {
	return "indexing " + e.root + " crashed"
}
