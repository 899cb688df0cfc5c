package router

import (
	"sync"
	"time"
)

// Health tracks one breaker per provider, created lazily on first use.
type Health struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	threshold int
	cooldown  time.Duration
}

func NewHealth(threshold int, cooldown time.Duration) *Health {
	return &Health{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (h *Health) breaker(provider string) *Breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.breakers[provider]
	if !ok {
		b = NewBreaker(h.threshold, h.cooldown)
		h.breakers[provider] = b
	}
	return b
}

// Allow reports whether the provider should receive a request right now.
func (h *Health) Allow(provider string) bool {
	return h.breaker(provider).Allow()
}

func (h *Health) ReportSuccess(provider string) {
	h.breaker(provider).Success()
}

func (h *Health) ReportFailure(provider string) {
	h.breaker(provider).Failure()
}

// States snapshots every tracked breaker for the health endpoint.
func (h *Health) States() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.breakers))
	for name, b := range h.breakers {
		out[name] = b.State().String()
	}
	return out
}
