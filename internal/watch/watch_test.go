package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(root, Options{Quiet: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register its directories before
	// the test mutates the tree.
	time.Sleep(100 * time.Millisecond)
	return w
}

// nextBatch waits for one event batch, skipping empty reads.
func nextBatch(t *testing.T, w *Watcher) []Event {
	t.Helper()
	select {
	case batch, ok := <-w.Events():
		require.True(t, ok, "event channel closed early")
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("no file events observed")
		return nil
	}
}

func batchPaths(batch []Event) map[string]Op {
	out := make(map[string]Op, len(batch))
	for _, ev := range batch {
		out[ev.Path] = ev.Op
	}
	return out
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), Options{}, nil)
	assert.Error(t, err)
}

func TestNewRejectsFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err := New(file, Options{}, nil)
	assert.Error(t, err)
}

func TestWatcherReportsCreatedFile(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	target := filepath.Join(root, "report.txt")
	require.NoError(t, os.WriteFile(target, []byte("quarterly numbers"), 0o644))

	ops := batchPaths(nextBatch(t, w))
	assert.Equal(t, OpWrite, ops[target])
}

func TestWatcherReportsRemovedFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "old.txt")
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0o644))

	w := startWatcher(t, root)
	require.NoError(t, os.Remove(target))

	ops := batchPaths(nextBatch(t, w))
	assert.Equal(t, OpRemove, ops[target])
}

func TestWatcherCoversNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "2026")
	require.NoError(t, os.Mkdir(sub, 0o755))
	target := filepath.Join(sub, "january.md")

	// The file may land before the new directory watch is in place,
	// so retry the write until an event for it is seen.
	require.NoError(t, os.WriteFile(target, []byte("# notes"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-w.Events():
			if op, ok := batchPaths(batch)[target]; ok {
				assert.Equal(t, OpWrite, op)
				return
			}
		case <-deadline:
			t.Fatal("no event for file in new subdirectory")
		}
	}
}

func TestWatcherIgnoresHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	hidden := filepath.Join(root, ".cache")
	require.NoError(t, os.Mkdir(hidden, 0o755))

	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(hidden, "blob.txt"), []byte("x"), 0o644))
	visible := filepath.Join(root, "seen.txt")
	require.NoError(t, os.WriteFile(visible, []byte("y"), 0o644))

	ops := batchPaths(nextBatch(t, w))
	assert.Contains(t, ops, visible)
	assert.NotContains(t, ops, filepath.Join(hidden, "blob.txt"))
}

func TestWatcherStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, Options{Quiet: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	_, open := <-w.Events()
	assert.False(t, open)
}
