// Package watch follows a collection folder and reports file changes
// so the index can be kept current without a full re-scan on a timer.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op classifies a file change.
type Op int

const (
	// OpWrite covers both newly created and modified files.
	OpWrite Op = iota
	// OpRemove means the file is gone from the folder.
	OpRemove
)

func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is a single debounced file change. Path is absolute.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Options configures a Watcher.
type Options struct {
	// Quiet is how long a path must stay unchanged before its events
	// are emitted. Rapid saves within the window collapse to one event.
	Quiet time.Duration

	// BufferSize is the batch channel capacity. When the consumer
	// falls behind, further batches are dropped and logged.
	BufferSize int
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.Quiet <= 0 {
		o.Quiet = 400 * time.Millisecond
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 64
	}
	return o
}

// Watcher follows one collection root recursively.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	deb     *debouncer
	batches chan []Event
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a watcher for root. Run must be called to start it.
func New(root string, opts Options, log *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	opts = opts.WithDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		root:    abs,
		fsw:     fsw,
		deb:     newDebouncer(opts.Quiet),
		batches: make(chan []Event, opts.BufferSize),
		log:     log,
	}, nil
}

// Events returns batches of debounced changes. The channel is closed
// when Run returns.
func (w *Watcher) Events() <-chan []Event {
	return w.batches
}

// Run watches until ctx is cancelled. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		w.forward(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			w.deb.stop()
			<-forwardDone
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.deb.stop()
				<-forwardDone
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.deb.stop()
				<-forwardDone
				return nil
			}
			w.log.Warn("watcher error", "root", w.root, "error", err)
		}
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.fsw.Close()
	close(w.batches)
}

// addRecursive registers root and every non-hidden subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.log.Warn("skipping unreadable directory", "path", path, "error", err)
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	if hiddenWithin(w.root, name) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			// A directory moved in can already hold files that will
			// never produce their own events.
			if err := w.addRecursive(name); err != nil {
				w.log.Warn("watch new directory", "path", name, "error", err)
			}
			w.emitTree(name)
			return
		}
		w.deb.add(Event{Path: name, Op: OpWrite, Time: time.Now()})
	case ev.Op&fsnotify.Write != 0:
		w.deb.add(Event{Path: name, Op: OpWrite, Time: time.Now()})
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename leaves this path gone; the new name arrives as a
		// separate create.
		w.deb.add(Event{Path: name, Op: OpRemove, Time: time.Now()})
	}
}

// emitTree reports every file under dir as written.
func (w *Watcher) emitTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		w.deb.add(Event{Path: path, Op: OpWrite, Time: time.Now()})
		return nil
	})
}

func (w *Watcher) forward(ctx context.Context) {
	for batch := range w.deb.output() {
		select {
		case w.batches <- batch:
		case <-ctx.Done():
			return
		default:
			w.log.Warn("dropping change batch, consumer too slow",
				"root", w.root, "events", len(batch))
		}
	}
}

// hiddenWithin reports whether any path element below root is hidden.
func hiddenWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
