package router

import (
	"sync"
	"time"
)

// BreakerState is the admission state of a provider breaker.
type BreakerState int

const (
	BreakerClosed  BreakerState = iota // requests flow
	BreakerOpen                        // requests rejected
	BreakerProbing                     // one in-flight probe decides
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// Breaker trips after a run of consecutive failures and, once the cooldown
// has elapsed, admits a single probe request. The probe's outcome either
// closes the breaker or restarts the cooldown. Unlike a plain half-open
// circuit, at most one probe is ever in flight.
type Breaker struct {
	mu sync.Mutex

	state       BreakerState
	consecutive int
	openedAt    time.Time
	probeOut    bool

	threshold int
	cooldown  time.Duration
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a request may proceed. When it returns true during
// probing, the caller owns the probe and must report its outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		b.state = BreakerProbing
		b.probeOut = false
	}

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerProbing:
		if b.probeOut {
			return false
		}
		b.probeOut = true
		return true
	default:
		return false
	}
}

// Success records a completed request. Closes the breaker from probing and
// resets the failure run.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.consecutive = 0
	b.probeOut = false
}

// Failure records a failed request, tripping the breaker at the threshold
// or reopening it when a probe fails.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerProbing:
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.probeOut = false
	case BreakerClosed:
		b.consecutive++
		if b.consecutive >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = time.Now()
		}
	}
}

// State returns the current admission state without mutating it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}
