package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docufind/docufind/internal/extract"
)

// boomExtractor panics on any path containing "boom" and otherwise
// returns the path back as text. Used to verify crash isolation.
type boomExtractor struct{}

func (boomExtractor) Extensions() []string { return []string{".note"} }
func (boomExtractor) Kind() string         { return "Note" }

func (boomExtractor) Extract(_ context.Context, path string) (string, error) {
	if strings.Contains(path, "boom") {
		panic("simulated extractor crash")
	}
	return path, nil
}

func testRegistry() *extract.Registry {
	r := extract.NewRegistry()
	r.Register(boomExtractor{})
	return r
}

func makeTasks(t *testing.T, names []string) []Task {
	t.Helper()
	dir := t.TempDir()
	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("content of "+name), 0o644))
		tasks = append(tasks, Task{Path: path, Size: 10, Modified: time.Now()})
	}
	return tasks
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}

func TestNewPoolValidation(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name    string
		workers int
		reg     *extract.Registry
		wantErr bool
	}{
		{name: "default size", workers: 0, reg: reg},
		{name: "explicit size", workers: 4, reg: reg},
		{name: "negative size", workers: -1, reg: reg, wantErr: true},
		{name: "absurd size", workers: maxWorkers + 1, reg: reg, wantErr: true},
		{name: "missing registry", workers: 2, reg: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPool(tt.workers, tt.reg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, p.Workers(), 1)
		})
	}
}

func TestPoolDeliversEachTaskExactlyOnce(t *testing.T) {
	names := make([]string, 25)
	for i := range names {
		names[i] = fmt.Sprintf("file%02d.note", i)
	}
	tasks := makeTasks(t, names)

	pool, err := NewPool(4, testRegistry())
	require.NoError(t, err)

	seen := make(map[string]int)
	for res := range pool.Run(context.Background(), tasks) {
		require.NoError(t, res.Err)
		seen[res.Task.Path]++
	}

	assert.Len(t, seen, len(tasks), "every task must complete")
	for path, n := range seen {
		assert.Equal(t, 1, n, "task %s delivered more than once", path)
	}
}

func TestPoolCrashConfinedToTask(t *testing.T) {
	names := []string{
		"a.note", "boom1.note", "b.note", "c.note", "d.note",
		"boom2.note", "e.note", "f.note", "g.note", "h.note",
	}
	tasks := makeTasks(t, names)

	pool, err := NewPool(3, testRegistry())
	require.NoError(t, err)

	var crashed, succeeded int
	for res := range pool.Run(context.Background(), tasks) {
		if strings.Contains(filepath.Base(res.Task.Path), "boom") {
			require.Error(t, res.Err)
			assert.Contains(t, res.Err.Error(), "crashed")
			crashed++
		} else {
			require.NoError(t, res.Err)
			succeeded++
		}
	}

	assert.Equal(t, 2, crashed)
	assert.Equal(t, 8, succeeded)
}

func TestPoolStopsOnCancelledContext(t *testing.T) {
	tasks := makeTasks(t, []string{"a.note", "b.note", "c.note", "d.note"})

	pool, err := NewPool(2, testRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered := 0
	for range pool.Run(ctx, tasks) {
		delivered++
	}
	assert.LessOrEqual(t, delivered, len(tasks))
}
