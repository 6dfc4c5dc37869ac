package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowscan/internal/flowscan"
)

// scanningSession returns a session in the state Start leaves behind for run 1.
func scanningSession() (*Session, context.Context, chan struct{}) {
	s := New(nil, nil, flowscan.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.state = State{Status: Scanning}
	s.run = 1
	s.cancel = cancel
	s.done = done
	return s, ctx, done
}

func TestFinish_LateStopKeepsNaturalEnd(t *testing.T) {
	s, _, done := scanningSession()

	// The run has returned on its own; the stop arrives before the outcome is recorded.
	require.NoError(t, s.Stop())
	s.finish(1, done, 0, nil, false)

	st := s.Snapshot()
	assert.Equal(t, End, st.Status)
	assert.Equal(t, 0, st.ExitCode)
	assert.False(t, st.Stopped)

	select {
	case <-done:
	default:
		t.Fatal("done not closed")
	}
}

func TestExecute_StopSeenByRunner(t *testing.T) {
	s, ctx, done := scanningSession()
	s.runner = runnerFunc(func(ctx context.Context, _ flowscan.Telemetry) (int, error) {
		<-ctx.Done()
		return 130, nil
	})

	go s.execute(ctx, 1, done)
	require.NoError(t, s.Stop())
	<-done

	st := s.Snapshot()
	assert.Equal(t, 130, st.ExitCode)
	assert.True(t, st.Stopped)
}

type runnerFunc func(ctx context.Context, tel flowscan.Telemetry) (int, error)

func (f runnerFunc) Run(ctx context.Context, tel flowscan.Telemetry) (int, error) {
	return f(ctx, tel)
}
