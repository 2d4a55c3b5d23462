package agent

import (
	"context"
	"sync/atomic"

	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/memory"
)

// VectorConnector exposes vector.upsert and vector.query over the retrieval
// corpus behind the memory store.
type VectorConnector struct {
	name      string
	docs      memory.DocumentStore
	policy    RetryPolicy
	connected atomic.Bool
}

var _ Connector = (*VectorConnector)(nil)

// VectorOption is a functional option for [NewVector].
type VectorOption func(*VectorConnector)

// WithVectorPolicy overrides the retry policy.
func WithVectorPolicy(p RetryPolicy) VectorOption {
	return func(c *VectorConnector) { c.policy = p }
}

// NewVector creates a vector connector over the given document store.
func NewVector(name string, docs memory.DocumentStore, opts ...VectorOption) (*VectorConnector, error) {
	if name == "" || docs == nil {
		return nil, fault.New(fault.InvalidArgument, "agent: vector connector needs name and document store")
	}
	c := &VectorConnector{
		name:   name,
		docs:   docs,
		policy: DefaultRetryPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *VectorConnector) Name() string        { return c.name }
func (c *VectorConnector) Policy() RetryPolicy { return c.policy }

// Connect marks the connector usable. The store is already open.
func (c *VectorConnector) Connect(context.Context) error {
	c.connected.Store(true)
	return nil
}

// Disconnect marks the connector unusable; closing the store is the app's
// responsibility because other components share it.
func (c *VectorConnector) Disconnect(context.Context) error {
	c.connected.Store(false)
	return nil
}

// Upsert performs vector.upsert.
func (c *VectorConnector) Upsert(ctx context.Context, doc memory.RAGDoc) error {
	if !c.connected.Load() {
		return fault.New(fault.Internal, "agent: vector connector %q is not connected", c.name)
	}
	opCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout())
	defer cancel()
	return c.docs.Upsert(opCtx, doc)
}

// Query performs vector.query.
func (c *VectorConnector) Query(ctx context.Context, q string, topK int) ([]memory.ScoredDoc, error) {
	if !c.connected.Load() {
		return nil, fault.New(fault.Internal, "agent: vector connector %q is not connected", c.name)
	}
	opCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout())
	defer cancel()
	return c.docs.Query(opCtx, q, topK)
}
