package testutil

import (
	"strings"
	"sync"
)

// StatusUpdate is one recorded Status call.
type StatusUpdate struct {
	Lines      []string
	Percentage int
}

// RecordingTelemetry captures everything a Runner emits.
type RecordingTelemetry struct {
	mu       sync.Mutex
	logs     []string
	statuses []StatusUpdate
}

func (r *RecordingTelemetry) Log(text string) {
	r.mu.Lock()
	r.logs = append(r.logs, text)
	r.mu.Unlock()
}

func (r *RecordingTelemetry) Status(lines []string, percentage int) {
	r.mu.Lock()
	r.statuses = append(r.statuses, StatusUpdate{Lines: append([]string(nil), lines...), Percentage: percentage})
	r.mu.Unlock()
}

// Output returns all log text concatenated.
func (r *RecordingTelemetry) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.logs, "")
}

func (r *RecordingTelemetry) Statuses() []StatusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusUpdate(nil), r.statuses...)
}
