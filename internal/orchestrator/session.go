package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/internal/segment"
	"github.com/modernreader/sensoria/pkg/types"
)

// DefaultSessionTTL is the inactivity window after which a session is
// discarded. Any successful operation on the session refreshes it.
const DefaultSessionTTL = 30 * time.Minute

// Session is the soft state of one reading playback. It is not durable
// across restarts.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time

	mu           sync.Mutex
	segments     []segment.Segment
	currentIndex int
	playing      bool
	lastEmotion  types.EmotionReading
	updatedAt    time.Time

	// planGen stamps outbound events so device adapters can drop stale ones
	// after a re-play. planCancel aborts the previous plan's dispatches.
	planGen    uint64
	planCtx    context.Context
	planCancel context.CancelFunc
}

// beginPlan cancels any in-flight plan and opens the next generation. The
// returned context is cancelled by the next beginPlan or by endPlans.
func (s *Session) beginPlan() (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.planCancel != nil {
		s.planCancel()
	}
	s.planCtx, s.planCancel = context.WithCancel(context.Background())
	s.planGen++
	return s.planCtx, s.planGen
}

// currentPlan returns the live plan context and generation. The context is
// nil before the first play.
func (s *Session) currentPlan() (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planCtx, s.planGen
}

// endPlans cancels the in-flight plan, if any.
func (s *Session) endPlans() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.planCancel != nil {
		s.planCancel()
		s.planCancel = nil
	}
}

// Manager owns the session table and its inactivity expiry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
}

// ManagerOption is a functional option for [NewManager].
type ManagerOption func(*Manager)

// WithSessionTTL overrides the inactivity TTL.
func WithSessionTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithManagerClock overrides the time source, used by tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation, used by tests.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates an empty session table.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create registers a fresh session for the user (userID may be empty).
func (m *Manager) Create(userID string) *Session {
	now := m.now()
	s := &Session{
		ID:        m.newID(),
		UserID:    userID,
		StartedAt: now,
		updatedAt: now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(now)
	m.sessions[s.ID] = s
	return s
}

// Get returns the live session or a not_found fault. An expired session is
// indistinguishable from a missing one.
func (m *Manager) Get(id string) (*Session, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(now)
	s, ok := m.sessions[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "orchestrator: session %q not found", id)
	}
	return s, nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(m.now())
	return len(m.sessions)
}

// Close cancels all in-flight plans and drops every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.endPlans()
		delete(m.sessions, id)
	}
	return nil
}

func (m *Manager) purgeExpiredLocked(now time.Time) {
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := now.Sub(s.updatedAt) > m.ttl
		s.mu.Unlock()
		if expired {
			s.endPlans()
			delete(m.sessions, id)
		}
	}
}
