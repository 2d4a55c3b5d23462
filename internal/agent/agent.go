// Package agent provides the shared runtime primitives for Sensoria's
// processing agents: capability descriptors, connectors, and the scheduler.
//
// The two primary abstractions are:
//
//   - [Agent] — a unit of processing that declares its inputs, outputs, and
//     required connectors through a [Descriptor]. The orchestrator wires
//     agents by capability, never by concrete type.
//   - [Scheduler] — the single-process work pool shared by the orchestrator
//     and the device fan-out, bounding in-flight work per session.
//
// This package lives under internal/ because it encapsulates
// application-private orchestration logic and is not intended to be imported
// by external code.
package agent

import (
	"context"
	"sync"

	"github.com/modernreader/sensoria/internal/fault"
)

// Descriptor declares what an agent consumes, produces, and depends on.
// It is the wiring contract: the orchestrator matches agents to work by
// output capability.
type Descriptor struct {
	// Name is the stable, unique agent identifier. Used as a map key and in
	// logs; must not change after registration.
	Name string `json:"name"`

	// Inputs names the capabilities the agent consumes (e.g., "text",
	// "emotion_reading").
	Inputs []string `json:"inputs"`

	// Outputs names the capabilities the agent produces (e.g.,
	// "playback_plan", "haptic_events").
	Outputs []string `json:"outputs"`

	// Connectors lists the connector names the agent requires. Registration
	// fails when one is missing.
	Connectors []string `json:"connectors"`
}

// Agent is one processing unit in the runtime.
//
// Implementations must be safe for concurrent use; Process may be called for
// many sessions at once.
type Agent interface {
	// Describe returns the agent's wiring contract. The result must be
	// constant for the agent's lifetime.
	Describe() Descriptor

	// Process consumes one input document and produces one output document.
	// Keys follow the capabilities named in the descriptor.
	Process(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Registry wires agents and connectors by name and capability.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]Agent
	connectors map[string]Connector
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:     make(map[string]Agent),
		connectors: make(map[string]Connector),
	}
}

// RegisterConnector makes a connector available to agents under its name.
func (r *Registry) RegisterConnector(c Connector) error {
	name := c.Name()
	if name == "" {
		return fault.New(fault.InvalidArgument, "agent: connector name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connectors[name]; exists {
		return fault.New(fault.InvalidArgument, "agent: connector %q already registered", name)
	}
	r.connectors[name] = c
	return nil
}

// Register adds an agent after validating its descriptor against the
// registered connectors.
func (r *Registry) Register(a Agent) error {
	d := a.Describe()
	if d.Name == "" {
		return fault.New(fault.InvalidArgument, "agent: descriptor name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[d.Name]; exists {
		return fault.New(fault.InvalidArgument, "agent: %q already registered", d.Name)
	}
	for _, cn := range d.Connectors {
		if _, ok := r.connectors[cn]; !ok {
			return fault.New(fault.InvalidArgument, "agent: %q requires unknown connector %q", d.Name, cn)
		}
	}
	r.agents[d.Name] = a
	return nil
}

// Connector returns a registered connector by name.
func (r *Registry) Connector(name string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

// ByOutput returns all agents producing the given capability, in no
// particular order.
func (r *Registry) ByOutput(capability string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Agent
	for _, a := range r.agents {
		for _, o := range a.Describe().Outputs {
			if o == capability {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Describe returns descriptors of all registered agents.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Describe())
	}
	return out
}

// CloseConnectors disconnects every registered connector, returning the
// first error encountered.
func (r *Registry) CloseConnectors(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, c := range r.connectors {
		if err := c.Disconnect(ctx); err != nil && first == nil {
			first = fault.Wrap(fault.Internal, err, "agent: disconnect %q", name)
		}
		delete(r.connectors, name)
	}
	return first
}
