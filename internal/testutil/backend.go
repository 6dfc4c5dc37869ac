package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"flowscan/internal/flowscan"
	"flowscan/internal/model"
)

// MemoryBackend is a flowscan.Backend that keeps persisted flows in memory.
type MemoryBackend struct {
	// ConnectErr, when set, is returned by Connect.
	ConnectErr error
	// FailFlow makes Persist fail for the flow with this id.
	FailFlow string

	mu        sync.Mutex
	connected bool
	flows     []model.Flow
	log       []string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Kind() string { return "memory" }

func (b *MemoryBackend) Connect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "connect")
	if b.ConnectErr != nil {
		return &flowscan.ConnectionError{Backend: b.Kind(), Err: b.ConnectErr}
	}
	b.connected = true
	return nil
}

// Setup discards every flow stored so far.
func (b *MemoryBackend) Setup(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "setup")
	b.flows = nil
	return nil
}

func (b *MemoryBackend) Persist(_ context.Context, flow *model.Flow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "persist "+flow.ID)
	if !b.connected {
		return &flowscan.ConnectionError{Backend: b.Kind(), Err: errors.New("not connected")}
	}
	if flow.ID == b.FailFlow {
		return &flowscan.PersistError{Entity: flowscan.EntityFlow, FlowID: flow.ID, Err: errors.New("rejected by test")}
	}

	copied := *flow
	copied.Reviews = append([]model.Review(nil), flow.Reviews...)
	b.flows = append(b.flows, copied)
	return nil
}

func (b *MemoryBackend) Disconnect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "disconnect")
	b.connected = false
	return nil
}

func (b *MemoryBackend) NormalizeTimestamp(t time.Time) any { return t.UTC() }

// Flows returns copies of the persisted flows in insertion order.
func (b *MemoryBackend) Flows() []model.Flow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Flow(nil), b.flows...)
}

// Calls returns the backend operations in call order, e.g. "connect", "persist f1".
func (b *MemoryBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

var _ flowscan.Backend = (*MemoryBackend)(nil)
