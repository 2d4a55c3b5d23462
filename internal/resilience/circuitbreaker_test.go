package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
)

var errBackendDown = fault.New(fault.UpstreamUnavailable, "backend down")

func failCall() error { return errBackendDown }
func okCall() error   { return nil }

// newTestBreaker returns a breaker whose clock reads *now, so tests advance
// time without sleeping.
func newTestBreaker(now *time.Time) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "tts/test",
		MaxFailures:  3,
		ResetTimeout: 10 * time.Second,
		HalfOpenMax:  2,
		Clock:        func() time.Time { return *now },
	})
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		if cb.State() != StateClosed {
			t.Fatalf("call %d: state %v, want closed", i, cb.State())
		}
		if err := cb.Execute(failCall); !errors.Is(err, errBackendDown) {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("state after trip: %v, want open", cb.State())
	}
	if err := cb.Execute(okCall); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker should reject without calling fn, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(failCall)
	}
	if err := cb.Execute(okCall); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_ = cb.Execute(failCall)
	}

	if cb.State() != StateClosed {
		t.Errorf("interleaved success should reset the run, state %v", cb.State())
	}
}

func TestBreakerIgnoresPermanentFaults(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)
	reject := fault.New(fault.InvalidArgument, "empty text")

	// A backend that answers with a rejection is reachable; rejections must
	// never open the breaker no matter how many arrive.
	for i := 0; i < 20; i++ {
		if err := cb.Execute(func() error { return reject }); !errors.Is(err, reject) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state: %v, want closed", cb.State())
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(failCall)
	}
	now = now.Add(11 * time.Second)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state after reset timeout: %v, want half-open", cb.State())
	}

	// HalfOpenMax successful probes close the breaker.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(okCall); err != nil {
			t.Fatalf("recovery call %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state after recovery: %v, want closed", cb.State())
	}
}

func TestBreakerReopensOnFailedRecoveryCall(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(failCall)
	}
	now = now.Add(11 * time.Second)

	if err := cb.Execute(failCall); !errors.Is(err, errBackendDown) {
		t.Fatalf("recovery call: %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state after failed recovery call: %v, want open", cb.State())
	}
	if err := cb.Execute(okCall); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("re-opened breaker should reject, got %v", err)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(failCall)
	}
	cb.Reset()

	if cb.State() != StateClosed {
		t.Fatalf("state after reset: %v, want closed", cb.State())
	}
	if err := cb.Execute(okCall); err != nil {
		t.Errorf("reset breaker should forward calls, got %v", err)
	}
}

func TestBreakerDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "defaults"})
	if cb.trip != 5 || cb.reset != 30*time.Second || cb.probes != 3 {
		t.Errorf("defaults: trip=%d reset=%v probes=%d", cb.trip, cb.reset, cb.probes)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state: %v, want closed", cb.State())
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
