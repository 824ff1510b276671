package watch

import (
	"sort"
	"sync"
	"time"
)

// debouncer coalesces rapid events so an editor save (often a
// remove-then-write pair plus several writes) reaches the consumer as
// a single event. For one path the latest operation wins: a write
// after a remove means the file exists again, a remove after a write
// means it is gone.
type debouncer struct {
	quiet   time.Duration
	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	out     chan []Event
	stopped bool
}

func newDebouncer(quiet time.Duration) *debouncer {
	return &debouncer{
		quiet:   quiet,
		pending: make(map[string]Event),
		out:     make(chan []Event, 16),
	}
}

func (d *debouncer) output() <-chan []Event {
	return d.out
}

func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending[ev.Path] = ev

	if d.timer == nil {
		d.timer = time.AfterFunc(d.quiet, d.flush)
	} else {
		d.timer.Reset(d.quiet)
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}
	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	// Sending under the lock keeps stop from closing the channel
	// mid-send. The buffer makes this a non-blocking operation unless
	// the consumer has stopped reading entirely, in which case the
	// events stay pending for the next flush.
	select {
	case d.out <- batch:
		d.pending = make(map[string]Event)
	default:
		d.timer.Reset(d.quiet)
	}
}

// stop drops pending events and closes the output channel.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
