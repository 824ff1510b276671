// Package indexer drives one collection root end to end: scan, extract
// through a bounded worker pool, and write results to the collection's
// store in completion order.
package indexer

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/docufind/docufind/internal/extract"
)

// chunkSize is how many tasks a worker claims at once. Larger chunks cut
// dispatch overhead but let one worker get stuck behind a run of large
// files while the rest idle; 2 keeps the pipeline balanced at negligible
// dispatch cost.
const chunkSize = 2

// maxWorkers bounds explicit overrides; requests beyond it indicate a
// misconfiguration rather than a real machine.
const maxWorkers = 512

// Task is one file's extraction work item. Immutable once created and
// consumed exactly once by a pool worker.
type Task struct {
	Path     string
	Size     int64
	Modified time.Time
}

// Result is one completed task: extracted text or the extraction failure.
type Result struct {
	Task Task
	Text string
	Err  error
}

// DefaultWorkers is the pool size used when no override is given:
// 75% of available processing units, minimum 1.
func DefaultWorkers() int {
	n := runtime.NumCPU() * 3 / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Pool is a fixed-size extraction worker pool. Workers share no state and
// never touch a store; they are pure functions of their tasks.
type Pool struct {
	workers    int
	extractors *extract.Registry
}

// NewPool creates a pool of the given size (0 means DefaultWorkers).
func NewPool(workers int, extractors *extract.Registry) (*Pool, error) {
	if workers == 0 {
		workers = DefaultWorkers()
	}
	if workers < 0 || workers > maxWorkers {
		return nil, fmt.Errorf("worker count %d out of range [1,%d]", workers, maxWorkers)
	}
	if extractors == nil {
		return nil, fmt.Errorf("extractor registry is required")
	}
	return &Pool{workers: workers, extractors: extractors}, nil
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Run distributes tasks to the workers in chunks and returns a channel of
// results in completion order, not submission order: fast files come back
// before slow ones without blocking the pipeline. The channel delivers
// exactly one result per task and is closed when all tasks are done.
//
// A panic while extracting is confined to that task: it is reported as
// the task's error and the worker moves on to its next chunk.
func (p *Pool) Run(ctx context.Context, tasks []Task) <-chan Result {
	chunks := make(chan []Task, len(tasks)/chunkSize+1)
	for start := 0; start < len(tasks); start += chunkSize {
		end := start + chunkSize
		if end > len(tasks) {
			end = len(tasks)
		}
		chunks <- tasks[start:end]
	}
	close(chunks)

	results := make(chan Result, p.workers)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunks {
				for _, task := range chunk {
					select {
					case results <- p.execute(ctx, task):
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// execute runs one extraction, converting a panic into that task's error.
func (p *Pool) execute(ctx context.Context, task Task) (res Result) {
	res.Task = task
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("extraction worker crashed on %s: %v", task.Path, r)
		}
	}()
	res.Text, res.Err = p.extractors.Extract(ctx, task.Path)
	return res
}
