package flowscan

import (
	"context"
	"time"

	"flowscan/internal/model"
)

// Backend is a storage driver for write-once scan results.
// Implementations live in the database package; exactly one is active per process.
type Backend interface {
	// Kind returns the configuration discriminant of the driver ("sql" or "mongo").
	Kind() string

	// Connect establishes the connection. Failures are returned as *ConnectionError.
	// Calling Connect twice on the same instance is not supported.
	Connect(ctx context.Context) error

	// Setup prepares the backend for ingestion. Failures are returned as *ProvisionError.
	// The relational driver discards all prior state; the document driver never deletes.
	Setup(ctx context.Context) error

	// Persist inserts the flow, then each of its reviews in input order.
	// Failures are returned as *PersistError.
	Persist(ctx context.Context, flow *model.Flow) error

	// Disconnect releases the connection. The backend must not be used afterwards.
	Disconnect(ctx context.Context) error

	// NormalizeTimestamp converts t into the value the backend stores for date-time fields.
	NormalizeTimestamp(t time.Time) any
}
