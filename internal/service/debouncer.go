package service

import (
	"strings"
	"sync"
	"time"

	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
)

// Debouncer runs the last function scheduled under a key once the key
// has been quiet for the given delay. Rescheduling cancels the pending
// call.
type Debouncer struct {
	clk clock.Clock

	mu      sync.Mutex
	gen     uint64
	pending map[string]debounceEntry
}

type debounceEntry struct {
	timer clock.Timer
	gen   uint64
}

func NewDebouncer(clk clock.Clock) *Debouncer {
	return &Debouncer{
		clk:     clk,
		pending: make(map[string]debounceEntry),
	}
}

func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
	}

	d.gen++
	gen := d.gen
	timer := d.clk.AfterFunc(delay, func() {
		d.mu.Lock()
		e, ok := d.pending[key]
		// A stale timer that lost the race with Stop must not run.
		if !ok || e.gen != gen {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()

		fn()
	})
	d.pending[key] = debounceEntry{timer: timer, gen: gen}
}

func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

func (d *Debouncer) CancelPrefix(prefix string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.pending {
		if strings.HasPrefix(key, prefix) {
			e.timer.Stop()
			delete(d.pending, key)
		}
	}
}

// Pending returns the number of keys with a call still scheduled.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
