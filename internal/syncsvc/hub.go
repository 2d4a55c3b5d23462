package syncsvc

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultOutboxSize is the per-subscriber frame buffer. A subscriber that
// stops reading loses its oldest frames and receives a lag marker instead of
// stalling the broadcast.
const DefaultOutboxSize = 16

// FrameType discriminates push channel frames.
type FrameType string

const (
	FrameWelcome FrameType = "welcome"
	FrameUpdate  FrameType = "update"
	FramePong    FrameType = "pong"
	FrameLag     FrameType = "lag"
	FrameError   FrameType = "error"
)

// Frame is one JSON message on the push channel.
type Frame struct {
	Type      FrameType `json:"type"`
	ETag      string    `json:"etag,omitempty"`
	FileCount int       `json:"file_count,omitempty"`
	Changed   bool      `json:"changed,omitempty"`
	TS        int64     `json:"ts,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Subscriber is one push channel client. The transport layer drains Outbox
// and writes each frame to the wire.
type Subscriber struct {
	id     string
	out    chan Frame
	lagged bool
}

// ID returns the subscriber's opaque identifier.
func (s *Subscriber) ID() string { return s.id }

// Outbox is the subscriber's frame stream. It closes on Unsubscribe.
func (s *Subscriber) Outbox() <-chan Frame { return s.out }

// Hub fans ETag updates out to push channel subscribers. Enqueueing never
// blocks: a full outbox drops its oldest frame and marks the episode with one
// lag frame.
type Hub struct {
	mu         sync.Mutex
	subs       map[string]*Subscriber
	outboxSize int
	closed     bool
}

// HubOption is a functional option for [NewHub].
type HubOption func(*Hub)

// WithOutboxSize overrides the per-subscriber buffer size. The minimum is 2
// so a lag marker and the newest frame always fit together.
func WithOutboxSize(n int) HubOption {
	return func(h *Hub) {
		if n > 1 {
			h.outboxSize = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:       make(map[string]*Subscriber),
		outboxSize: DefaultOutboxSize,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers a new subscriber and queues its welcome frame carrying
// the current etag and file count.
func (h *Hub) Subscribe(etag string, fileCount int) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscriber{
		id:  uuid.NewString(),
		out: make(chan Frame, h.outboxSize),
	}
	if h.closed {
		close(sub.out)
		return sub
	}
	h.subs[sub.id] = sub
	h.offerLocked(sub, Frame{Type: FrameWelcome, ETag: etag, FileCount: fileCount})
	return sub
}

// Unsubscribe removes the subscriber and closes its outbox. Idempotent.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.out)
}

// BroadcastUpdate queues an update frame to every subscriber.
func (h *Hub) BroadcastUpdate(etag string, ts int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := Frame{Type: FrameUpdate, ETag: etag, Changed: true, TS: ts}
	for _, sub := range h.subs {
		h.offerLocked(sub, f)
	}
}

// Pong queues a pong frame in reply to a client ping.
func (h *Hub) Pong(sub *Subscriber) {
	h.Send(sub, Frame{Type: FramePong})
}

// Send queues one frame to a single subscriber. Dropped silently when the
// subscriber is gone.
func (h *Hub) Send(sub *Subscriber, f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	h.offerLocked(sub, f)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// CloseAll drops every subscriber and rejects future subscriptions.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.out)
	}
}

// offerLocked enqueues without blocking. On overflow it drops the oldest
// queued frame and inserts one lag marker per congestion episode; a lag
// marker evicted by the drop goes straight back on the queue so the reader
// still sees it when it catches up. Callers hold h.mu, which keeps the
// drain-and-retry atomic against other senders; the subscriber's reader only
// ever receives.
func (h *Hub) offerLocked(sub *Subscriber, f Frame) {
	for {
		select {
		case sub.out <- f:
			if len(sub.out) < cap(sub.out) {
				sub.lagged = false
			}
			return
		default:
		}
		evictedLag := false
		select {
		case old := <-sub.out:
			evictedLag = old.Type == FrameLag
		default:
		}
		if evictedLag || !sub.lagged {
			sub.lagged = true
			select {
			case sub.out <- Frame{Type: FrameLag}:
			default:
			}
		}
	}
}
