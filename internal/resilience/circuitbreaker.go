// Package resilience shields the provider surface from flaky backends.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops hammering a backend after a run of transport failures. Accounting is
// fault-aware: only transient kinds (timeout, upstream_unavailable, internal)
// count against a backend, since a permanent rejection such as
// invalid_argument proves the backend is reachable. [FallbackGroup] chains
// providers of the same type behind per-entry breakers so a tripped primary
// is bypassed in favour of the next healthy entry.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls to decide whether
	// the backend has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero-value fields select
// the defaults documented on each field.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log lines, conventionally
	// "<provider-kind>/<provider-name>".
	Name string

	// MaxFailures is the run of consecutive transient failures that trips
	// the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing the
	// backend again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. The breaker
	// closes once this many probes succeed. Default: 3.
	HalfOpenMax int

	// Logger receives state transition logs. Default: slog.Default().
	Logger *slog.Logger

	// Clock overrides the time source, used by tests.
	Clock func() time.Time
}

// CircuitBreaker implements the three-state breaker pattern over the fault
// taxonomy.
type CircuitBreaker struct {
	name   string
	trip   int
	reset  time.Duration
	probes int
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failRun   int       // consecutive transient failures while closed
	lastFail  time.Time // keeps the breaker open for reset after each failure
	probeSent int
	probeOK   int
}

// NewCircuitBreaker creates a [CircuitBreaker] from cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &CircuitBreaker{
		name:   cfg.Name,
		trip:   cfg.MaxFailures,
		reset:  cfg.ResetTimeout,
		probes: cfg.HalfOpenMax,
		log:    cfg.Logger,
		now:    cfg.Clock,
	}
}

// Execute runs fn if the breaker admits the call, returning [ErrCircuitOpen]
// otherwise. fn's error is returned unchanged; only its fault kind feeds the
// breaker accounting.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}
	callErr := fn()
	cb.settle(callErr, probing)
	return callErr
}

// admit decides whether a call may proceed and whether it runs as a
// half-open probe.
func (cb *CircuitBreaker) admit() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFail) < cb.reset {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeSent = 0
		cb.probeOK = 0
		cb.log.Info("circuit breaker probing backend", "name", cb.name)
	}
	if cb.state == StateHalfOpen {
		if cb.probeSent >= cb.probes {
			return false, ErrCircuitOpen
		}
		cb.probeSent++
		return true, nil
	}
	return false, nil
}

// settle folds the call outcome back into the breaker. A permanent fault
// counts as contact with a healthy backend, not as a failure.
func (cb *CircuitBreaker) settle(err error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && fault.KindOf(err).IsTransient() {
		cb.lastFail = cb.now()
		if probing {
			cb.state = StateOpen
			cb.failRun = cb.trip
			cb.log.Warn("circuit breaker re-opened, probe failed", "name", cb.name)
			return
		}
		cb.failRun++
		if cb.failRun >= cb.trip {
			cb.state = StateOpen
			cb.log.Warn("circuit breaker opened",
				"name", cb.name, "consecutive_failures", cb.failRun)
		}
		return
	}

	if probing {
		cb.probeOK++
		if cb.probeOK >= cb.probes {
			cb.state = StateClosed
			cb.failRun = 0
			cb.log.Info("circuit breaker closed after successful probes", "name", cb.name)
		}
		return
	}
	cb.failRun = 0
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the actual transition happens on the next
// [CircuitBreaker.Execute] call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFail) >= cb.reset {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failRun = 0
	cb.probeSent = 0
	cb.probeOK = 0
	cb.log.Info("circuit breaker manually reset", "name", cb.name)
}
