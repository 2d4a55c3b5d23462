package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
)

func twoEntryGroup(cbCfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{CircuitBreaker: cbCfg})
	fg.AddFallback("backup", "backup")
	return fg
}

func TestFallbackPrefersPrimary(t *testing.T) {
	t.Parallel()

	fg := twoEntryGroup(CircuitBreakerConfig{})
	got, err := ExecuteWithResult(fg, func(v string) (string, error) { return v, nil })
	if err != nil {
		t.Fatal(err)
	}
	if got != "primary" {
		t.Errorf("got %q, want primary", got)
	}
}

func TestFallbackTriesNextOnTransientFault(t *testing.T) {
	t.Parallel()

	fg := twoEntryGroup(CircuitBreakerConfig{})
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", fault.New(fault.UpstreamUnavailable, "primary down")
		}
		return v, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "backup" {
		t.Errorf("got %q, want backup", got)
	}
}

func TestFallbackAllFailed(t *testing.T) {
	t.Parallel()

	fg := twoEntryGroup(CircuitBreakerConfig{})
	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", fault.New(fault.UpstreamUnavailable, "down")
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("got %v, want ErrAllFailed", err)
	}
}

func TestFallbackStopsOnInvalidArgument(t *testing.T) {
	t.Parallel()

	fg := twoEntryGroup(CircuitBreakerConfig{})
	calls := 0
	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		calls++
		return "", fault.New(fault.InvalidArgument, "empty text")
	})

	// A rejected request fails the same way everywhere; the chain must not
	// burn the backup on it.
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
	if fault.KindOf(err) != fault.InvalidArgument {
		t.Errorf("kind: got %v, want invalid_argument", fault.KindOf(err))
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("rejection should surface unwrapped, not as ErrAllFailed")
	}
}

func TestFallbackSkipsOpenBreakers(t *testing.T) {
	t.Parallel()

	fg := twoEntryGroup(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	calls := 0
	fail := func(string) (string, error) {
		calls++
		return "", fault.New(fault.UpstreamUnavailable, "down")
	}

	if _, err := ExecuteWithResult(fg, fail); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("first round: %v", err)
	}
	if calls != 2 {
		t.Fatalf("first round calls: got %d, want 2", calls)
	}

	// Both breakers are now open; the second round must not reach fn.
	if _, err := ExecuteWithResult(fg, fail); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("second round: %v", err)
	}
	if calls != 2 {
		t.Errorf("second round calls: got %d, want 2 (breakers open)", calls)
	}
}

func TestFallbackExecuteWithoutResult(t *testing.T) {
	t.Parallel()

	fg := twoEntryGroup(CircuitBreakerConfig{})
	var served string
	err := fg.Execute(func(v string) error {
		if v == "primary" {
			return fault.New(fault.Timeout, "slow")
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if served != "backup" {
		t.Errorf("served by %q, want backup", served)
	}
}

func TestFallbackPlainErrorsCountAsTransient(t *testing.T) {
	t.Parallel()

	// Errors outside the taxonomy classify as internal, which is transient,
	// so failover still happens for providers returning bare errors.
	fg := twoEntryGroup(CircuitBreakerConfig{})
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errors.New("connection reset")
		}
		return v, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "backup" {
		t.Errorf("got %q, want backup", got)
	}
}
