package flowscan

import (
	"context"

	"flowscan/internal/model"
)

// Telemetry receives progress from a running work unit.
// Calls may arrive at any rate; implementations serialize them.
type Telemetry interface {
	// Log appends raw text to the session log.
	Log(text string)

	// Status replaces the current progress snapshot.
	Status(lines []string, percentage int)
}

// Runner is a single scan work unit. Run blocks until the unit terminates and returns
// its exit code (0 for clean success). Cancelling ctx asks the unit to stop cooperatively.
type Runner interface {
	Run(ctx context.Context, tel Telemetry) (int, error)
}

// Scanner is a Runner that leaves flows behind once it exits cleanly.
type Scanner interface {
	Runner
	Results() ([]*model.Flow, error)
}
