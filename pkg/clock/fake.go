package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. AfterFunc callbacks run
// synchronously inside Advance, in deadline order, without the clock
// lock held, so they may schedule further timers.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	fn       func()
	ch       chan time.Time
	interval time.Duration
	stopped  bool
	fired    bool
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	w := &fakeWaiter{deadline: c.now.Add(d), fn: f}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return &fakeTimer{c: c, w: w}
}

func (c *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	w := &fakeWaiter{deadline: c.now.Add(d), ch: make(chan time.Time, 1), interval: d}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return &fakeTicker{c: c, w: w}
}

// Pending returns the number of timers and tickers still armed.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, firing everything due on the way.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		w := c.nextDue(target)
		if w == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if w.deadline.After(c.now) {
			c.now = w.deadline
		}
		at := c.now
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
		} else {
			w.fired = true
		}
		c.mu.Unlock()

		if w.fn != nil {
			w.fn()
		} else {
			select {
			case w.ch <- at:
			default:
			}
		}
	}
}

func (c *Fake) nextDue(target time.Time) *fakeWaiter {
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			live = append(live, w)
		}
	}
	c.waiters = live
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
		return nil
	}
	return c.waiters[0]
}

type fakeTimer struct {
	c *Fake
	w *fakeWaiter
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.w.stopped || t.w.fired {
		return false
	}
	t.w.stopped = true
	return true
}

type fakeTicker struct {
	c *Fake
	w *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t *fakeTicker) Stop() {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.w.stopped = true
}
