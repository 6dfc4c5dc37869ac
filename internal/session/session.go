// Package session holds the scan session state machine.
//
// A session is idle until a start command launches the work unit. It stays scanning
// until the unit terminates, naturally or after a stop command, and then rests in end
// with the exit code recorded. A new start is accepted from idle or end.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"flowscan/internal/flowscan"
)

// Status is the session state.
type Status string

const (
	Idle     Status = "idle"
	Scanning Status = "scanning"
	End      Status = "end"
)

// DefaultLogLimit caps the retained log text. Older output is discarded from the front.
const DefaultLogLimit = 1 << 20

// State is a point-in-time copy of the session.
type State struct {
	Status     Status   `json:"status"`
	Log        string   `json:"log"`
	StatusText []string `json:"statusText"`
	Percentage int      `json:"percentage"`
	ExitCode   int      `json:"exitCode"`
	Stopped    bool     `json:"stopped"`
}

// Listener observes session mutations in the order they happen.
// Methods are called with the session lock held and must not call back into the Session.
type Listener interface {
	OnStart()
	// OnLog receives the full log buffer after an append.
	OnLog(log string)
	OnStatus(lines []string, percentage int)
	OnEnd(code int, stopped bool)
}

// Session owns the scan state and the one running work unit.
type Session struct {
	runner   flowscan.Runner
	listener Listener
	logger   flowscan.Logger
	logLimit int

	mu            sync.Mutex
	state         State
	run           uint64
	cancel        context.CancelFunc
	stopRequested bool
	done          chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogLimit overrides DefaultLogLimit. n <= 0 keeps the whole log.
func WithLogLimit(n int) Option {
	return func(s *Session) { s.logLimit = n }
}

// New creates an idle session. listener may be nil.
func New(runner flowscan.Runner, listener Listener, logger flowscan.Logger, opts ...Option) *Session {
	if listener == nil {
		listener = nopListener{}
	}
	s := &Session{
		runner:   runner,
		listener: listener,
		logger:   logger,
		logLimit: DefaultLogLimit,
		state:    State{Status: Idle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the work unit. It is rejected while a scan is running and leaves the
// running scan and its log untouched in that case.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == Scanning {
		return fmt.Errorf("%w: scan already running", flowscan.ErrCommandRejected)
	}

	s.run++
	s.state = State{Status: Scanning}
	s.stopRequested = false

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	s.listener.OnStart()
	s.logger.Info("scan started", "run", s.run)

	go s.execute(ctx, s.run, done)
	return nil
}

func (s *Session) execute(ctx context.Context, run uint64, done chan struct{}) {
	code, err := s.runner.Run(ctx, &telemetry{session: s, run: run})
	// A stop that lands after Run has returned does not mark the run stopped.
	stopped := ctx.Err() != nil
	s.finish(run, done, code, err, stopped)
}

// finish records the outcome of a run and moves the session to end.
func (s *Session) finish(run uint64, done chan struct{}, code int, err error, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)

	if err != nil {
		s.logger.Error("scan failed", "run", run, "error", err)
		s.appendLog(fmt.Sprintf("error: %v\n", err))
		if code == 0 {
			code = 1
		}
	}

	s.cancel()
	s.cancel = nil
	s.state.Status = End
	s.state.ExitCode = code
	s.state.Stopped = stopped

	s.listener.OnEnd(code, s.state.Stopped)
	s.logger.Info("scan ended", "run", run, "code", code, "stopped", s.state.Stopped)
}

// Stop asks the running work unit to terminate. The session moves to end only once the
// unit has returned. Stopping twice is harmless; stopping when nothing runs is rejected.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != Scanning {
		return fmt.Errorf("%w: no scan running", flowscan.ErrCommandRejected)
	}
	if s.stopRequested {
		return nil
	}
	s.stopRequested = true
	s.cancel()
	s.logger.Info("scan stop requested", "run", s.run)
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.StatusText = append([]string(nil), s.state.StatusText...)
	return st
}

// IfIdle runs fn while holding the session lock, provided no scan is running.
// A Start cannot interleave with fn.
func (s *Session) IfIdle(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == Scanning {
		return fmt.Errorf("%w: scan in progress", flowscan.ErrCommandRejected)
	}
	return fn()
}

// Wait blocks until the current scan, if any, has ended.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// appendLog must be called with s.mu held.
func (s *Session) appendLog(text string) {
	if text == "" {
		return
	}
	log := s.state.Log + text
	if s.logLimit > 0 && len(log) > s.logLimit {
		log = log[len(log)-s.logLimit:]
		// Resume at a line boundary when one is available.
		if i := strings.IndexByte(log, '\n'); i >= 0 && i < len(log)-1 {
			log = log[i+1:]
		}
	}
	s.state.Log = log
	s.listener.OnLog(log)
}

// ClampPercentage bounds p to [0, 100].
func ClampPercentage(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// telemetry binds work unit output to one run; output from a finished run is dropped.
type telemetry struct {
	session *Session
	run     uint64
}

func (t *telemetry) Log(text string) {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.live() {
		return
	}
	s.appendLog(text)
}

func (t *telemetry) Status(lines []string, percentage int) {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.live() {
		return
	}
	s.state.StatusText = append([]string(nil), lines...)
	s.state.Percentage = ClampPercentage(percentage)
	s.listener.OnStatus(append([]string(nil), lines...), s.state.Percentage)
}

func (t *telemetry) live() bool {
	return t.session.run == t.run && t.session.state.Status == Scanning
}

type nopListener struct{}

func (nopListener) OnStart() {}
func (nopListener) OnLog(string) {}
func (nopListener) OnStatus([]string, int) {}
func (nopListener) OnEnd(int, bool) {}

var _ flowscan.Telemetry = (*telemetry)(nil)
