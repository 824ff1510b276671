package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/docufind/docufind/internal/extract"
	"github.com/docufind/docufind/internal/store"
)

// sequentialThreshold is the task count below which parallel execution is
// not worth the pool setup; small collections index sequentially even when
// parallel mode is requested.
const sequentialThreshold = 8

// Writer is the store surface the orchestrator needs. One orchestrator
// writes to exactly one store, and nothing else writes to it while an
// indexing run is active.
type Writer interface {
	Write(ctx context.Context, doc *store.Document) (bool, error)
}

// ProgressFunc receives indexing progress: tasks completed so far, the
// total discovered, and a short human-readable message for the current
// file. Calls are sequential; implementations need no locking. A panic in
// the callback is swallowed so a broken progress display cannot abort a
// long indexing run.
type ProgressFunc func(done, total int, message string)

// Options control a single indexing run.
type Options struct {
	// Parallel requests pool-based extraction. It is advisory: small
	// collections and single-core machines run sequentially regardless.
	Parallel bool

	// Workers overrides the pool size; 0 means DefaultWorkers.
	Workers int

	// MaxFileSize skips files larger than this many bytes; 0 means no limit.
	MaxFileSize int64

	Progress ProgressFunc
}

// Summary reports what an indexing run did. Indexed counts documents
// written or confirmed unchanged; Errored counts files whose extraction
// or store write failed; Skipped counts files passed over before
// extraction (unsupported type, oversized, unreadable metadata).
type Summary struct {
	Indexed int
	Errored int
	Skipped int
}

// Orchestrator indexes one collection root into one store.
type Orchestrator struct {
	root       string
	store      Writer
	extractors *extract.Registry
	log        *slog.Logger
}

// New creates an orchestrator for the given root. The root must be the
// canonical form registered in the source registry so that folder paths
// recorded in documents stay stable across runs.
func New(root string, w Writer, extractors *extract.Registry, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{root: root, store: w, extractors: extractors, log: log}
}

// Run scans the root and indexes every supported file, returning per-file
// counts. Per-file failures are isolated: one unreadable or corrupt file
// is counted and logged, never aborts the run. Only an unusable root or a
// cancelled context is a hard failure.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	info, err := os.Stat(o.root)
	if err != nil {
		return nil, fmt.Errorf("stat collection root %s: %w", o.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collection root %s is not a directory", o.root)
	}

	summary := &Summary{}
	tasks, err := o.scan(ctx, opts, summary)
	if err != nil {
		return nil, err
	}

	o.log.Info("indexing_run_started",
		slog.String("root", o.root),
		slog.Int("files", len(tasks)),
		slog.Int("skipped_on_scan", summary.Skipped),
		slog.Bool("parallel", o.useParallel(opts, len(tasks))))

	if o.useParallel(opts, len(tasks)) {
		pool, perr := NewPool(opts.Workers, o.extractors)
		if perr != nil {
			o.log.Warn("worker_pool_unavailable, falling back to sequential",
				slog.String("error", perr.Error()))
			return summary, o.runSequential(ctx, tasks, opts, summary)
		}
		return summary, o.runParallel(ctx, pool, tasks, opts, summary)
	}
	return summary, o.runSequential(ctx, tasks, opts, summary)
}

// useParallel decides the execution mode for this run.
func (o *Orchestrator) useParallel(opts Options, taskCount int) bool {
	if !opts.Parallel {
		return false
	}
	if taskCount <= sequentialThreshold {
		return false
	}
	return runtime.NumCPU() > 1
}

// scan walks the root and collects one task per supported file. Unreadable
// subtrees are logged and skipped rather than failing the walk.
func (o *Orchestrator) scan(ctx context.Context, opts Options, summary *Summary) ([]Task, error) {
	var tasks []Task
	walkErr := filepath.WalkDir(o.root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			o.log.Warn("scan_entry_unreadable", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			summary.Skipped++
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != o.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !o.extractors.Supports(path) {
			summary.Skipped++
			return nil
		}
		fi, serr := d.Info()
		if serr != nil {
			o.log.Warn("scan_stat_failed", slog.String("path", path), slog.String("error", serr.Error()))
			summary.Skipped++
			return nil
		}
		if opts.MaxFileSize > 0 && fi.Size() > opts.MaxFileSize {
			o.log.Info("file_skipped_oversized",
				slog.String("path", path), slog.Int64("size", fi.Size()))
			summary.Skipped++
			return nil
		}
		tasks = append(tasks, Task{Path: path, Size: fi.Size(), Modified: fi.ModTime()})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan %s: %w", o.root, walkErr)
	}
	return tasks, nil
}

func (o *Orchestrator) runSequential(ctx context.Context, tasks []Task, opts Options, summary *Summary) error {
	total := len(tasks)
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := o.extractOne(ctx, task)
		o.record(ctx, task, text, err, summary)
		o.progress(opts.Progress, i+1, total, filepath.Base(task.Path))
	}
	return nil
}

func (o *Orchestrator) runParallel(ctx context.Context, pool *Pool, tasks []Task, opts Options, summary *Summary) error {
	total := len(tasks)
	done := 0
	for res := range pool.Run(ctx, tasks) {
		o.record(ctx, res.Task, res.Text, res.Err, summary)
		done++
		o.progress(opts.Progress, done, total, filepath.Base(res.Task.Path))
	}
	return ctx.Err()
}

// extractOne mirrors the pool's per-task crash isolation for the
// sequential path.
func (o *Orchestrator) extractOne(ctx context.Context, task Task) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction crashed on %s: %v", task.Path, r)
		}
	}()
	return o.extractors.Extract(ctx, task.Path)
}

// record turns one completed task into a store write and updates counts.
// Results arrive in completion order under parallel execution; the store's
// single open connection serializes the writes.
func (o *Orchestrator) record(ctx context.Context, task Task, text string, extractErr error, summary *Summary) {
	if extractErr != nil {
		summary.Errored++
		o.log.Warn("file_extraction_failed",
			slog.String("path", task.Path), slog.String("error", extractErr.Error()))
		return
	}
	kind, _ := o.extractors.KindFor(task.Path)
	doc := &store.Document{
		Path:     task.Path,
		Name:     filepath.Base(task.Path),
		Folder:   o.folderFor(task.Path),
		Kind:     kind,
		Size:     task.Size,
		Modified: task.Modified,
		Content:  text,
	}
	if _, err := o.store.Write(ctx, doc); err != nil {
		summary.Errored++
		o.log.Warn("document_write_failed",
			slog.String("path", task.Path), slog.String("error", err.Error()))
		return
	}
	summary.Indexed++
}

// progress invokes the callback, swallowing any panic it raises.
func (o *Orchestrator) progress(fn ProgressFunc, done, total int, message string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn("progress_callback_panicked", slog.Any("panic", r))
		}
	}()
	fn(done, total, message)
}

// folderFor derives the stored folder path for a file: the containing
// directory relative to the collection root, prefixed with the root's own
// name, with separators flattened to spaces so each path segment is an
// independently matchable term in folder-scoped searches.
func (o *Orchestrator) folderFor(path string) string {
	dir := filepath.Dir(path)
	rel, err := filepath.Rel(o.root, dir)
	if err != nil || rel == "." {
		rel = ""
	}
	return flattenFolder(filepath.Join(filepath.Base(o.root), rel))
}

// flattenFolder rewrites path separators as spaces.
func flattenFolder(dir string) string {
	return strings.ReplaceAll(strings.ReplaceAll(dir, string(filepath.Separator), " "), "/", " ")
}
