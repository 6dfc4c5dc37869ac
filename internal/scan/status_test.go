package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flowscan/internal/config"
	"flowscan/internal/flowscan"
	"flowscan/internal/testutil"
)

func TestHandleLine_PercentageBounds(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{`@@status {"text": ["x"], "percentage": 150}`, 100},
		{`@@status {"text": ["x"], "percentage": 1e20}`, 100},
		{`@@status {"text": ["x"], "percentage": -3}`, 0},
		{`@@status {"text": ["x"], "percentage": -1e20}`, 0},
		{`@@status {"text": ["x"], "percentage": 99.5}`, 100},
		{`@@status {"text": ["x"], "percentage": 12.4}`, 12},
	}
	p := NewProcess(config.ScannerConfig{}, "", flowscan.NewNopLogger())

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			tel := &testutil.RecordingTelemetry{}
			p.handleLine(tel, tt.line)
			assert.Equal(t, []testutil.StatusUpdate{{Lines: []string{"x"}, Percentage: tt.want}}, tel.Statuses())
		})
	}
}
