package gateway

import (
	"sync"
	"time"

	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
)

// RateLimiter enforces fixed windows per opcode and across all opcodes
// for one session. Heartbeats are never limited.
type RateLimiter struct {
	clk       clock.Clock
	window    time.Duration
	perOpcode int
	global    int

	mu     sync.Mutex
	start  time.Time
	counts map[protocol.Opcode]int
	total  int
}

func NewRateLimiter(clk clock.Clock, window time.Duration, perOpcode, global int) *RateLimiter {
	return &RateLimiter{
		clk:       clk,
		window:    window,
		perOpcode: perOpcode,
		global:    global,
		start:     clk.Now(),
		counts:    make(map[protocol.Opcode]int),
	}
}

// Allow records one message and reports whether it fits both windows.
func (r *RateLimiter) Allow(op protocol.Opcode) bool {
	if op == protocol.OpHeartbeat {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	if now.Sub(r.start) >= r.window {
		r.start = now
		r.total = 0
		clear(r.counts)
	}

	if r.global > 0 && r.total >= r.global {
		return false
	}
	if r.perOpcode > 0 && r.counts[op] >= r.perOpcode {
		return false
	}
	r.total++
	r.counts[op]++
	return true
}
