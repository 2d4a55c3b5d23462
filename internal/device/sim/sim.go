// Package sim provides an in-process simulated device port. It backs locally
// configured devices that have no network address and doubles as the test
// double for the fan-out path.
package sim

import (
	"context"
	"sync"

	"github.com/modernreader/sensoria/internal/device"
	"github.com/modernreader/sensoria/pkg/types"
)

var _ device.Port = (*Port)(nil)

// Port is a simulated device endpoint. It records every payload it accepts
// and can be programmed to fail a fixed number of times or permanently.
type Port struct {
	mu        sync.Mutex
	received  []types.SensoryPayload
	failTimes int
	failWith  error
}

// Option is a functional option for [New].
type Option func(*Port)

// FailTimes makes the next n sends fail with err before recovering.
func FailTimes(n int, err error) Option {
	return func(p *Port) {
		p.failTimes = n
		p.failWith = err
	}
}

// FailAlways makes every send fail with err.
func FailAlways(err error) Option {
	return func(p *Port) {
		p.failTimes = -1
		p.failWith = err
	}
}

// New creates a simulated port.
func New(opts ...Option) *Port {
	p := &Port{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Send records the payload, honouring the programmed failures and ctx.
func (p *Port) Send(ctx context.Context, payload types.SensoryPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTimes != 0 {
		if p.failTimes > 0 {
			p.failTimes--
		}
		return p.failWith
	}
	p.received = append(p.received, payload)
	return nil
}

// Received returns a copy of all accepted payloads in delivery order.
func (p *Port) Received() []types.SensoryPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.SensoryPayload, len(p.received))
	copy(out, p.received)
	return out
}
