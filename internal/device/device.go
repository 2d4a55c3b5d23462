// Package device tracks connected output devices and fans emotion payloads
// out to them.
//
// The registry is read-mostly: writes (connect, disconnect, heartbeat) go
// through a single mutex while reads take snapshots. Liveness is derived
// lazily from the last heartbeat — a device with no contact for three
// heartbeat periods reports offline.
//
// Fan-out is concurrent with per-device timeouts, transient-only retries, and
// a total result map: every targeted device gets exactly one
// [types.DispatchResult], never a silent drop.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/types"
)

// Port is the adapter contract every vendor integration implements. Adapters
// translate the internal payload into the vendor format and must respect ctx
// deadlines. Errors should be classifiable via fault.KindOf so the fan-out
// can decide whether to retry.
type Port interface {
	Send(ctx context.Context, payload types.SensoryPayload) error
}

// DefaultHeartbeatPeriod is the expected heartbeat interval.
const DefaultHeartbeatPeriod = 10 * time.Second

// offlineAfterPeriods is how many missed heartbeat periods mark a device
// offline; half of that marks it degraded.
const offlineAfterPeriods = 3

// entry pairs a descriptor with its port. sendMu serializes dispatches to
// one device so per-device ordering follows submission order.
type entry struct {
	desc   types.DeviceDescriptor
	port   Port
	sendMu sync.Mutex
}

// Registry is the capability-typed device table. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*entry
	heartbeat time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// RegistryOption is a functional option for [NewRegistry].
type RegistryOption func(*Registry)

// WithHeartbeatPeriod sets the expected heartbeat interval.
func WithHeartbeatPeriod(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.heartbeat = d
		}
	}
}

// WithClock overrides the clock, used by tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryLogger sets the structured logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		devices:   make(map[string]*entry),
		heartbeat: DefaultHeartbeatPeriod,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Connect registers (or replaces) a device. The descriptor must carry an ID,
// a valid class, and at least one valid capability.
func (r *Registry) Connect(desc types.DeviceDescriptor, port Port) error {
	if desc.ID == "" {
		return fault.New(fault.InvalidArgument, "device id must not be empty")
	}
	if !desc.Class.IsValid() {
		return fault.New(fault.InvalidArgument, "unknown device class %q", desc.Class)
	}
	if len(desc.Capabilities) == 0 {
		return fault.New(fault.InvalidArgument, "device %q declares no capabilities", desc.ID)
	}
	for _, c := range desc.Capabilities {
		if !c.IsValid() {
			return fault.New(fault.InvalidArgument, "unknown capability %q", c)
		}
	}
	if port == nil {
		return fault.New(fault.InvalidArgument, "device %q has no port", desc.ID)
	}

	desc.Status = types.StatusOnline
	desc.LastSeen = r.now()

	r.mu.Lock()
	r.devices[desc.ID] = &entry{desc: desc, port: port}
	r.mu.Unlock()

	r.log.Info("device connected", "device_id", desc.ID, "class", desc.Class)
	return nil
}

// Disconnect removes a device. Removing an unknown device is not an error.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()
	r.log.Info("device disconnected", "device_id", id)
}

// Heartbeat refreshes a device's last_seen.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[id]
	if !ok {
		return fault.New(fault.NotFound, "device %q is not connected", id)
	}
	e.desc.LastSeen = r.now()
	return nil
}

// Get returns the current descriptor for id with derived status.
func (r *Registry) Get(id string) (types.DeviceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[id]
	if !ok {
		return types.DeviceDescriptor{}, false
	}
	return r.derived(e.desc), true
}

// List returns a snapshot of all descriptors with derived status, sorted by
// registration map order (callers needing stable order sort themselves).
func (r *Registry) List() []types.DeviceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.DeviceDescriptor, 0, len(r.devices))
	for _, e := range r.devices {
		out = append(out, r.derived(e.desc))
	}
	return out
}

// IDs returns the ids of all registered devices.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.devices))
	for id := range r.devices {
		out = append(out, id)
	}
	return out
}

// lookup returns the live entry for dispatching.
func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[id]
	return e, ok
}

// derived computes the status from the last heartbeat.
func (r *Registry) derived(d types.DeviceDescriptor) types.DeviceDescriptor {
	age := r.now().Sub(d.LastSeen)
	switch {
	case age > time.Duration(offlineAfterPeriods)*r.heartbeat:
		d.Status = types.StatusOffline
	case age > time.Duration(offlineAfterPeriods)*r.heartbeat/2:
		d.Status = types.StatusDegraded
	default:
		d.Status = types.StatusOnline
	}
	return d
}

// String implements fmt.Stringer for log lines.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("Registry(%d devices)", len(r.devices))
}
