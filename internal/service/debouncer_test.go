package service

import (
	"testing"
	"time"
)

func TestDebouncerRescheduleCancelsPending(t *testing.T) {
	clk := newFakeClock()
	d := NewDebouncer(clk)

	var fired []string
	d.Schedule("k", 250*time.Millisecond, func() { fired = append(fired, "first") })
	clk.Advance(200 * time.Millisecond)
	d.Schedule("k", 250*time.Millisecond, func() { fired = append(fired, "second") })

	clk.Advance(200 * time.Millisecond)
	if len(fired) != 0 {
		t.Fatalf("fired early: %v", fired)
	}

	clk.Advance(50 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "second" {
		t.Fatalf("fired = %v, want [second]", fired)
	}
	if d.Pending() != 0 {
		t.Fatalf("Pending() = %d after firing", d.Pending())
	}
}

func TestDebouncerCancelPrefix(t *testing.T) {
	clk := newFakeClock()
	d := NewDebouncer(clk)

	count := 0
	d.Schedule("c1|a", time.Second, func() { count++ })
	d.Schedule("c1|b", time.Second, func() { count++ })
	d.Schedule("c2|a", time.Second, func() { count++ })

	d.CancelPrefix("c1|")
	clk.Advance(2 * time.Second)

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestDebouncerCallbackMayReschedule(t *testing.T) {
	clk := newFakeClock()
	d := NewDebouncer(clk)

	runs := 0
	var fn func()
	fn = func() {
		runs++
		if runs == 1 {
			d.Schedule("k", time.Second, fn)
		}
	}
	d.Schedule("k", time.Second, fn)

	clk.Advance(3 * time.Second)
	if runs != 2 {
		t.Fatalf("runs = %d, want 2", runs)
	}
}
