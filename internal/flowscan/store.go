package flowscan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowscan/internal/model"
)

// Store is the single entry point for persisting scan results.
// It owns the one active Backend; switching backends means building a new Store.
type Store struct {
	backend Backend
	logger  Logger

	mu        sync.Mutex
	connected bool
}

// NewStore wraps the backend selected from configuration.
func NewStore(backend Backend, logger Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// Kind returns the discriminant of the active backend.
func (s *Store) Kind() string {
	return s.backend.Kind()
}

// Connect opens the backend connection.
func (s *Store) Connect(ctx context.Context) error {
	s.logger.Debug("connecting backend", "backend", s.backend.Kind())
	if err := s.backend.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("backend connected", "backend", s.backend.Kind())
	return nil
}

// Setup provisions the backend for a new run.
func (s *Store) Setup(ctx context.Context) error {
	if !s.isConnected() {
		return &ProvisionError{Backend: s.backend.Kind(), Step: "setup", Err: errors.New("not connected")}
	}
	if err := s.backend.Setup(ctx); err != nil {
		return err
	}
	s.logger.Info("backend provisioned", "backend", s.backend.Kind())
	return nil
}

// Persist writes one flow and its reviews.
// Reviews with an empty FlowID are attached to flow; a review naming a different flow
// is rejected before anything is written.
func (s *Store) Persist(ctx context.Context, flow *model.Flow) error {
	if flow == nil {
		return &PersistError{Entity: EntityFlow, Err: errors.New("nil flow")}
	}
	if !s.isConnected() {
		return &ConnectionError{Backend: s.backend.Kind(), Err: errors.New("not connected")}
	}
	if flow.ID == "" {
		return &PersistError{Entity: EntityFlow, Err: errors.New("flow id is empty")}
	}

	for i := range flow.Reviews {
		r := &flow.Reviews[i]
		if r.FlowID == "" {
			r.FlowID = flow.ID
			continue
		}
		if r.FlowID != flow.ID {
			return &PersistError{
				Entity: EntityReview,
				Index:  i,
				FlowID: flow.ID,
				Err:    fmt.Errorf("review references flow %s", r.FlowID),
			}
		}
	}

	if err := s.backend.Persist(ctx, flow); err != nil {
		s.logger.Error("persist failed", "flow", flow.ID, "error", err)
		return err
	}

	s.logger.Debug("flow persisted", "flow", flow.ID, "reviews", len(flow.Reviews))
	return nil
}

// Disconnect closes the backend. Calling it on a store that never connected is a no-op.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	if !wasConnected {
		return nil
	}
	if err := s.backend.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting %s backend: %w", s.backend.Kind(), err)
	}
	s.logger.Info("backend disconnected", "backend", s.backend.Kind())
	return nil
}

// NormalizeTimestamp forwards to the active backend.
func (s *Store) NormalizeTimestamp(t time.Time) any {
	return s.backend.NormalizeTimestamp(t)
}

func (s *Store) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
