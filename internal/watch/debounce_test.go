package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestDebouncerCoalescesSamePath(t *testing.T) {
	d := newDebouncer(50 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "/c/a.txt", Op: OpWrite})
	d.add(Event{Path: "/c/a.txt", Op: OpWrite})
	d.add(Event{Path: "/c/a.txt", Op: OpWrite})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "/c/a.txt", batch[0].Path)
	assert.Equal(t, OpWrite, batch[0].Op)
}

func TestDebouncerLatestOperationWins(t *testing.T) {
	d := newDebouncer(50 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "/c/a.txt", Op: OpWrite})
	d.add(Event{Path: "/c/a.txt", Op: OpRemove})
	d.add(Event{Path: "/c/b.txt", Op: OpRemove})
	d.add(Event{Path: "/c/b.txt", Op: OpWrite})

	batch := collectBatch(t, d)
	require.Len(t, batch, 2)
	assert.Equal(t, OpRemove, batch[0].Op)
	assert.Equal(t, "/c/a.txt", batch[0].Path)
	assert.Equal(t, OpWrite, batch[1].Op)
	assert.Equal(t, "/c/b.txt", batch[1].Path)
}

func TestDebouncerEmitsSortedByPath(t *testing.T) {
	d := newDebouncer(50 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "/c/z.txt", Op: OpWrite})
	d.add(Event{Path: "/c/a.txt", Op: OpWrite})
	d.add(Event{Path: "/c/m.txt", Op: OpWrite})

	batch := collectBatch(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "/c/a.txt", batch[0].Path)
	assert.Equal(t, "/c/m.txt", batch[1].Path)
	assert.Equal(t, "/c/z.txt", batch[2].Path)
}

func TestDebouncerSeparateBatchesAfterQuiet(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "/c/first.txt", Op: OpWrite})
	first := collectBatch(t, d)
	require.Len(t, first, 1)

	d.add(Event{Path: "/c/second.txt", Op: OpWrite})
	second := collectBatch(t, d)
	require.Len(t, second, 1)
	assert.Equal(t, "/c/second.txt", second[0].Path)
}

func TestDebouncerStopClosesOutputAndDropsLateAdds(t *testing.T) {
	d := newDebouncer(time.Hour)
	d.add(Event{Path: "/c/a.txt", Op: OpWrite})
	d.stop()
	d.add(Event{Path: "/c/b.txt", Op: OpWrite})

	_, open := <-d.output()
	assert.False(t, open)
}
