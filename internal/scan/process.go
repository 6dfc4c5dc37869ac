// Package scan runs the external scan process that produces flows.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"flowscan/internal/config"
	"flowscan/internal/flowscan"
	"flowscan/internal/model"
)

// DefaultStopGrace is how long a process may take to exit after an interrupt before it is killed.
const DefaultStopGrace = 10 * time.Second

// Environment variables handed to the scan process.
const (
	EnvSettings = "FLOWSCAN_SETTINGS"
	EnvResults  = "FLOWSCAN_RESULTS"
)

// StatusPrefix marks an output line carrying a JSON progress update,
// e.g. `@@status {"text": ["page 3"], "percentage": 40}`.
const StatusPrefix = "@@status "

// Process runs the configured scanner command once per Run.
type Process struct {
	cfg          config.ScannerConfig
	settingsPath string
	logger       flowscan.Logger
}

// NewProcess creates a Process. settingsPath is passed to the command in FLOWSCAN_SETTINGS.
func NewProcess(cfg config.ScannerConfig, settingsPath string, logger flowscan.Logger) *Process {
	return &Process{cfg: cfg, settingsPath: settingsPath, logger: logger}
}

// Run starts the command and streams its output until it exits. Cancelling ctx sends an
// interrupt; the process is killed if it is still running after the stop grace period.
func (p *Process) Run(ctx context.Context, tel flowscan.Telemetry) (int, error) {
	if p.cfg.Command == "" {
		return 1, errors.New("no scanner command configured")
	}
	if p.cfg.ResultsPath != "" {
		if err := os.Remove(p.cfg.ResultsPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 1, fmt.Errorf("removing previous results: %w", err)
		}
	}

	grace := p.cfg.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command, p.cfg.Args...)
	cmd.Env = append(os.Environ(),
		EnvSettings+"="+p.settingsPath,
		EnvResults+"="+p.cfg.ResultsPath,
	)
	cmd.Cancel = func() error {
		p.logger.Info("interrupting scan process", "pid", cmd.Process.Pid)
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = grace

	stdout := newLineWriter(func(line string) { p.handleLine(tel, line) })
	stderr := newLineWriter(func(line string) { tel.Log(line + "\n") })
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("starting scan process: %w", err)
	}
	p.logger.Info("scan process started", "command", p.cfg.Command, "pid", cmd.Process.Pid)

	err := cmd.Wait()
	stdout.Flush()
	stderr.Flush()

	code, err := exitCode(cmd, err)
	p.logger.Info("scan process exited", "code", code)
	return code, err
}

// Results decodes the flows the last run wrote to the results file.
func (p *Process) Results() ([]*model.Flow, error) {
	return ReadResults(p.cfg.ResultsPath)
}

func (p *Process) handleLine(tel flowscan.Telemetry, line string) {
	if raw, ok := strings.CutPrefix(line, StatusPrefix); ok {
		var st statusLine
		if err := json.Unmarshal([]byte(raw), &st); err == nil {
			tel.Status(st.Text, int(math.Round(math.Max(0, math.Min(100, st.Percentage)))))
			return
		}
		p.logger.Debug("malformed status line", "line", line)
	}
	tel.Log(line + "\n")
}

// exitCode maps the result of Wait to a process exit code. A process killed by a
// signal reports 128+signal.
func exitCode(cmd *exec.Cmd, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	// The process exited cleanly but was interrupted, or something it spawned kept the
	// output open past the grace period.
	if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
		return cmd.ProcessState.ExitCode(), nil
	}
	return 1, fmt.Errorf("waiting for scan process: %w", err)
}

// statusLine is the JSON body of a status output line. text may be a list of lines or
// a single newline-separated string.
type statusLine struct {
	Text       textLines `json:"text"`
	Percentage float64   `json:"percentage"`
}

type textLines []string

func (l *textLines) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = strings.Split(one, "\n")
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

var _ flowscan.Scanner = (*Process)(nil)
