package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/types"
)

// Runner bounds and orders concurrent work. The agent scheduler implements
// it; a nil Runner makes the fan-out run work inline on the errgroup.
type Runner interface {
	// Run executes fn, blocking until fn finished or ctx is done. key groups
	// work for fair queueing (the session id during playback).
	Run(ctx context.Context, key string, fn func(context.Context) error) error
}

const (
	// DefaultDispatchTimeout bounds one send attempt to one device.
	DefaultDispatchTimeout = 2 * time.Second

	// defaultBackoffInitial and defaultBackoffFactor shape the retry delays:
	// 200ms, then 400ms.
	defaultBackoffInitial = 200 * time.Millisecond
	defaultBackoffFactor  = 2.0

	// defaultMaxRetries is the number of attempts after the first.
	defaultMaxRetries = 2
)

// Fanout dispatches one logical event to many devices concurrently.
type Fanout struct {
	reg            *Registry
	runner         Runner
	timeout        time.Duration
	backoffInitial time.Duration
	backoffFactor  float64
	maxRetries     int
	log            *slog.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

// FanoutOption is a functional option for [NewFanout].
type FanoutOption func(*Fanout)

// WithDispatchTimeout overrides the per-attempt device timeout.
func WithDispatchTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRunner routes dispatch work through a shared scheduler.
func WithRunner(r Runner) FanoutOption {
	return func(f *Fanout) { f.runner = r }
}

// WithMaxRetries overrides the retry budget (attempts after the first).
func WithMaxRetries(n int) FanoutOption {
	return func(f *Fanout) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithBackoff overrides the initial retry delay and growth factor.
func WithBackoff(initial time.Duration, factor float64) FanoutOption {
	return func(f *Fanout) {
		if initial > 0 {
			f.backoffInitial = initial
		}
		if factor >= 1 {
			f.backoffFactor = factor
		}
	}
}

// WithFanoutLogger sets the structured logger.
func WithFanoutLogger(l *slog.Logger) FanoutOption {
	return func(f *Fanout) { f.log = l }
}

// withSleep overrides the backoff sleeper, used by tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) FanoutOption {
	return func(f *Fanout) { f.sleep = fn }
}

// NewFanout creates a Fanout over the given registry.
func NewFanout(reg *Registry, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		reg:            reg,
		timeout:        DefaultDispatchTimeout,
		backoffInitial: defaultBackoffInitial,
		backoffFactor:  defaultBackoffFactor,
		maxRetries:     defaultMaxRetries,
		log:            slog.Default(),
		sleep:          sleepCtx,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Broadcast shapes and delivers the reading to the targeted devices.
// A nil targetIDs broadcasts to every registered device. The returned map has
// exactly one entry per targeted device; the broadcast itself never fails
// because a subset of devices failed.
//
// sessionKey groups the work for fair scheduling and may be empty.
// gen stamps payloads with the plan generation so adapters can drop stale
// events after a re-play.
func (f *Fanout) Broadcast(ctx context.Context, sessionKey string, reading types.EmotionReading, content string, targetIDs []string, gen uint64) map[string]types.DispatchResult {
	reading = reading.Clamp()
	if targetIDs == nil {
		targetIDs = f.reg.IDs()
	}

	results := make(map[string]types.DispatchResult, len(targetIDs))
	var mu sync.Mutex

	// One device's failure must never cancel the rest, so the group carries
	// no shared context; each dispatch applies its own attempt timeouts.
	var eg errgroup.Group
	for _, id := range targetIDs {
		eg.Go(func() error {
			res := f.dispatchOne(ctx, sessionKey, id, reading, content, gen)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// dispatchOne resolves, shapes, and sends with retry. Always returns a
// terminal result.
func (f *Fanout) dispatchOne(ctx context.Context, sessionKey, id string, reading types.EmotionReading, content string, gen uint64) types.DispatchResult {
	start := time.Now()

	e, ok := f.reg.lookup(id)
	if !ok {
		return types.DispatchResult{
			Status:    types.DispatchSkipped,
			Error:     "device not registered",
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	payload, compatible := ShapePayload(e.desc, reading, content, gen)
	if !compatible {
		return types.DispatchResult{
			Status:    types.DispatchSkipped,
			Error:     "no overlapping capability",
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	var result types.DispatchResult
	send := func(runCtx context.Context) error {
		// Serialize per-device sends so delivery follows submission order.
		e.sendMu.Lock()
		defer e.sendMu.Unlock()

		attempts := 0
		backoff := f.backoffInitial
		for {
			attempts++
			attemptCtx, cancel := context.WithTimeout(runCtx, f.timeout)
			err := e.port.Send(attemptCtx, payload)
			cancel()

			if err == nil {
				status := types.DispatchSuccess
				if attempts > 1 {
					status = types.DispatchRetriedSuccess
				}
				result = types.DispatchResult{
					Status:    status,
					Attempts:  attempts,
					LatencyMS: time.Since(start).Milliseconds(),
				}
				return nil
			}

			kind := fault.KindOf(err)
			if !kind.IsTransient() || attempts > f.maxRetries {
				f.log.Warn("device dispatch failed",
					"device_id", id, "attempts", attempts, "kind", string(kind), "error", err)
				result = types.DispatchResult{
					Status:    types.DispatchFailed,
					Attempts:  attempts,
					Error:     err.Error(),
					LatencyMS: time.Since(start).Milliseconds(),
				}
				return nil
			}

			if err := f.sleep(runCtx, backoff); err != nil {
				result = types.DispatchResult{
					Status:    types.DispatchFailed,
					Attempts:  attempts,
					Error:     "cancelled during backoff",
					LatencyMS: time.Since(start).Milliseconds(),
				}
				return nil
			}
			backoff = time.Duration(float64(backoff) * f.backoffFactor)
		}
	}

	if f.runner != nil {
		if err := f.runner.Run(ctx, sessionKey, send); err != nil {
			return types.DispatchResult{
				Status:    types.DispatchFailed,
				Error:     err.Error(),
				LatencyMS: time.Since(start).Milliseconds(),
			}
		}
	} else {
		_ = send(ctx)
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
