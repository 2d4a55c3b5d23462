package agent

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/modernreader/sensoria/internal/fault"
)

// DefaultMaxInflight is the per-session in-flight work bound.
const DefaultMaxInflight = 32

// Scheduler is the single-process work pool shared by the orchestrator and
// the device fan-out. Each session key gets its own in-flight budget, so a
// busy session queues behind itself instead of starving the others;
// acquisition within a key is FIFO.
type Scheduler struct {
	maxInflight int64

	mu    sync.Mutex
	slots map[string]*slot
}

// slot tracks one session's semaphore and the number of callers using it.
type slot struct {
	sem      *semaphore.Weighted
	refs     int
	inflight int64
}

// SchedulerOption is a functional option for [NewScheduler].
type SchedulerOption func(*Scheduler)

// WithMaxInflight overrides the per-session bound.
func WithMaxInflight(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxInflight = int64(n)
		}
	}
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		maxInflight: DefaultMaxInflight,
		slots:       make(map[string]*slot),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run executes fn under the key's in-flight budget, blocking until a slot is
// free or ctx is done. The empty key shares one default budget.
func (s *Scheduler) Run(ctx context.Context, key string, fn func(context.Context) error) error {
	sl := s.acquireSlot(key)
	defer s.releaseSlot(key)

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		return fault.Wrap(fault.Timeout, err, "agent: scheduler wait for %q", key)
	}
	s.mu.Lock()
	sl.inflight++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		sl.inflight--
		s.mu.Unlock()
		sl.sem.Release(1)
	}()

	return fn(ctx)
}

// Inflight reports how many slots the key currently has taken. Zero for
// unknown keys.
func (s *Scheduler) Inflight(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[key]; ok {
		return sl.inflight
	}
	return 0
}

func (s *Scheduler) acquireSlot(key string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{sem: semaphore.NewWeighted(s.maxInflight)}
		s.slots[key] = sl
	}
	sl.refs++
	return sl
}

func (s *Scheduler) releaseSlot(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		return
	}
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, key)
	}
}
