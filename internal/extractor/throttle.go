package extractor

import (
	"sync"
	"time"

	"docai/internal/domain"
)

// circuitState tracks rate-limit backoff for a single model.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resetAt.After(c.resetAt) {
		c.resetAt = resetAt
	}
}

// throttle holds one circuit per model so that a 429 from one model does not
// block the others.
type throttle struct {
	mu       sync.Mutex
	circuits map[domain.ExtractorModel]*circuitState
	now      func() time.Time
}

func newThrottle() *throttle {
	return &throttle{
		circuits: make(map[domain.ExtractorModel]*circuitState),
		now:      time.Now,
	}
}

func (t *throttle) circuit(model domain.ExtractorModel) *circuitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.circuits[model]
	if !ok {
		c = &circuitState{}
		t.circuits[model] = c
	}
	return c
}

// check returns the remaining wait when the model's circuit is open.
func (t *throttle) check(model domain.ExtractorModel) (time.Duration, bool) {
	now := t.now()
	resetAt, open := t.circuit(model).isOpenWithReset(now)
	if !open {
		return 0, false
	}
	return resetAt.Sub(now), true
}

func (t *throttle) trip(model domain.ExtractorModel, retryAfter time.Duration) {
	t.circuit(model).open(t.now().Add(retryAfter))
}
