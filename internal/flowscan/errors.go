package flowscan

import (
	"errors"
	"fmt"
)

// ErrCommandRejected is returned when a session command is not valid in the current state,
// e.g. start-scan while a scan is running or change-settings while scanning.
var ErrCommandRejected = errors.New("command rejected")

// ConnectionError reports a network or authentication failure while connecting a backend.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s backend: connection failed: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProvisionError reports a DDL or schema failure during Setup.
type ProvisionError struct {
	Backend string
	Step    string // e.g. "drop database", "create table reviews"
	Err     error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// Entities named by PersistError.
const (
	EntityFlow   = "flow"
	EntityReview = "review"
)

// PersistError reports which entity of a Flow graph failed to insert.
// Index is the review position for EntityReview and 0 for EntityFlow.
type PersistError struct {
	Entity string
	Index  int
	FlowID string
	Err    error
}

func (e *PersistError) Error() string {
	if e.Entity == EntityReview {
		return fmt.Sprintf("persisting review %d of flow %s: %v", e.Index, e.FlowID, e.Err)
	}
	return fmt.Sprintf("persisting flow %s: %v", e.FlowID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
