// Package breaker implements the two data-index circuit breakers of
// spec.md §4.8: getDataAttributes and getDataParent are wrapped so that a
// tripped breaker returns "unknown" (ok=false, err=nil) rather than
// propagating the underlying failure.
//
// No example repo in the pack imports a circuit-breaker library (checked:
// no gobreaker or similar anywhere in _examples), so this is hand-rolled
// with the same sync.Mutex-guarded-counters idiom the teacher itself uses
// for its own rolling-window/ring-buffer state (ring_mutex_map.go,
// fragment/cover_set.go), per the stdlib-fallback justification rule.
package breaker

import (
	"context"
	"sync"
	"time"
)

// State is the breaker's externally observable state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// Config carries spec.md §4.8's breaker parameters: "timeout configurable,
// 50% error rate over a 5-s rolling window trips, 10-s reset."
type Config struct {
	Timeout      time.Duration
	Window       time.Duration
	ErrorRatio   float64
	MinRequests  int
	ResetTimeout time.Duration
}

// DefaultConfig is spec.md §4.8's literal parameterization.
func DefaultConfig() Config {
	return Config{
		Timeout:      2 * time.Second,
		Window:       5 * time.Second,
		ErrorRatio:   0.5,
		MinRequests:  4,
		ResetTimeout: 10 * time.Second,
	}
}

// Breaker wraps a call with timeout + rolling-error-rate tripping. Call
// returns ok=false whenever the breaker is open, per spec.md §4.8 ("A
// tripped breaker returns undefined to the caller").
type Breaker struct {
	cfg  Config
	name string
	now  func() time.Time

	mu        sync.Mutex
	state     State
	openedAt  time.Time
	successes []time.Time
	failures  []time.Time
}

// New builds a Breaker with cfg, labeled name for metrics (spec.md §4.8
// wraps two distinct calls, getDataAttributes and getDataParent).
func New(name string, cfg Config) *Breaker {
	return &Breaker{cfg: cfg, name: name, now: time.Now}
}

// Call runs fn if the breaker is closed or half-open, enforcing cfg.Timeout.
// It returns (value, true, nil) on success, (zero, false, nil) when the
// breaker is open (the "unknown" result of spec.md §4.8), and (zero, false,
// err) when fn itself fails while the breaker remains closed.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if !b.allow() {
		breakerOpenTotal.WithLabelValues(b.name).Inc()
		return zero, false, nil
	}

	var cctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	var v, err = fn(cctx)
	b.record(err == nil)
	if err != nil {
		breakerCallErrorsTotal.WithLabelValues(b.name).Inc()
		return zero, false, err
	}
	return v, true, nil
}

// allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once cfg.ResetTimeout has elapsed since the trip.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.state = HalfOpen
		} else {
			return false
		}
	}
	return true
}

// record updates the rolling window with one outcome and re-evaluates
// whether the breaker should trip (or, from HalfOpen, close or re-open).
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var now = b.now()
	b.evict(now)
	if success {
		b.successes = append(b.successes, now)
	} else {
		b.failures = append(b.failures, now)
	}

	if b.state == HalfOpen {
		if success {
			b.state = Closed
			b.successes, b.failures = nil, nil
		} else {
			b.state = Open
			b.openedAt = now
		}
		return
	}

	var total = len(b.successes) + len(b.failures)
	if total < b.cfg.MinRequests {
		return
	}
	if float64(len(b.failures))/float64(total) >= b.cfg.ErrorRatio {
		b.state = Open
		b.openedAt = now
	}
}

// evict drops window entries older than cfg.Window relative to now.
func (b *Breaker) evict(now time.Time) {
	var cutoff = now.Add(-b.cfg.Window)
	b.successes = dropBefore(b.successes, cutoff)
	b.failures = dropBefore(b.failures, cutoff)
}

func dropBefore(ts []time.Time, cutoff time.Time) []time.Time {
	var i int
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

// State reports the breaker's current state, for tests and debug info.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

