// Package clock abstracts timers so heartbeat, debounce and sweep logic
// can be driven deterministically in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (Real) or synchronously
	// during Advance (Fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

type Timer interface {
	// Stop reports whether the call prevented f from running.
	Stop() bool
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
