package testutil

import (
	"context"
	"testing"

	"flowscan/internal/config"
	"flowscan/internal/database"
	"flowscan/internal/flowscan"
)

// NewTestStore creates a Store over an in-memory SQLite backend, connected and
// provisioned. The store is disconnected when the test completes.
func NewTestStore(t *testing.T) *flowscan.Store {
	t.Helper()

	backend, err := database.NewSQLDatabase(config.DatabaseConfig{
		Type:         config.DatabaseSQL,
		Driver:       "sqlite",
		Host:         ":memory:",
		DatabaseName: "test",
	}, flowscan.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	store := flowscan.NewStore(backend, flowscan.NewNopLogger())
	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		store.Disconnect(context.Background())
	})
	if err := store.Setup(ctx); err != nil {
		t.Fatalf("failed to set up backend: %v", err)
	}
	return store
}
