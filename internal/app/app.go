package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"flowscan/internal/broadcast"
	"flowscan/internal/config"
	"flowscan/internal/database"
	"flowscan/internal/flowscan"
	"flowscan/internal/scan"
	"flowscan/internal/server"
	"flowscan/internal/session"
)

// shutdownSlack is added to the scanner's stop grace when waiting for a scan on shutdown.
const shutdownSlack = 5 * time.Second

// App is the application layer between the CLI and the core packages.
// It constructs all dependencies from config and releases them on Close.
type App struct {
	cfg     *config.Config
	store   *flowscan.Store
	logger  flowscan.Logger
	clock   flowscan.Clock
	ids     flowscan.IDGenerator
	logFile *os.File
}

// Option configures an App.
type Option func(*options)

type options struct {
	console io.Writer
}

// WithConsole sets where log lines are mirrored besides the log file. nil disables it.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "serve", "import") and tags the log.
// The store is not connected yet. The caller must call Close when done.
func NewApp(cfg *config.Config, operation string, opts ...Option) (*App, error) {
	o := options{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	clock := flowscan.RealClock{}
	logger, logFile, err := newLogger(cfg.LogDir, newRunID(operation, clock.Now()), level, o.console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	backend, err := database.NewBackendFromConfig(cfg.Database, adapter)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   flowscan.NewStore(backend, adapter),
		logger:  adapter,
		clock:   clock,
		ids:     flowscan.UUIDGenerator{},
		logFile: logFile,
	}, nil
}

// open connects the store and, when provision is set, runs Setup.
func (a *App) open(ctx context.Context, provision bool) error {
	if err := a.store.Connect(ctx); err != nil {
		return fmt.Errorf("connecting store: %w", err)
	}
	if !provision {
		return nil
	}
	if err := a.store.Setup(ctx); err != nil {
		return fmt.Errorf("setting up store: %w", err)
	}
	return nil
}

// SetupDatabase connects and provisions the configured backend.
func (a *App) SetupDatabase(ctx context.Context) error {
	return a.open(ctx, true)
}

// Import persists the flows in a results file. With provision set the backend is set up
// first, which for the relational backend discards earlier results.
// Progress is written to out.
func (a *App) Import(ctx context.Context, path string, provision bool, out io.Writer) (int, error) {
	if err := a.open(ctx, provision); err != nil {
		return 1, err
	}
	pipeline := flowscan.NewPipeline(scan.NewResultsFile(path), a.store, a.clock, a.ids, a.logger)
	return pipeline.Run(ctx, &writerTelemetry{w: out})
}

// Serve connects and provisions the store, then serves the telemetry protocol on ln until
// ctx is cancelled. A running scan is stopped and awaited before Serve returns.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.open(ctx, true); err != nil {
		ln.Close()
		return err
	}

	settings, err := a.loadSettings()
	if err != nil {
		ln.Close()
		return err
	}

	hub := broadcast.NewHub(*settings, a.logger)
	proc := scan.NewProcess(a.cfg.Scanner, a.cfg.SettingsPath, a.logger)
	pipeline := flowscan.NewPipeline(proc, a.store, a.clock, a.ids, a.logger)
	sess := session.New(pipeline, hub, a.logger)
	save := func(s config.Settings) error { return config.SaveSettings(a.cfg.SettingsPath, &s) }
	srv := server.New(sess, hub, save, a.ids, a.logger)

	serveErr := srv.Serve(ctx, ln)

	if err := sess.Stop(); err == nil {
		a.logger.Info("stopping running scan for shutdown")
	}
	grace := a.cfg.Scanner.StopGrace
	if grace <= 0 {
		grace = scan.DefaultStopGrace
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), grace+shutdownSlack)
	defer cancel()
	if err := sess.Wait(waitCtx); err != nil {
		a.logger.Warn("scan did not finish before shutdown", "error", err)
	}

	return serveErr
}

// loadSettings reads the scan settings, writing them out first if the file does not exist
// so the scan process always finds one.
func (a *App) loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(a.cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(a.cfg.SettingsPath); errors.Is(err, os.ErrNotExist) {
		if err := config.SaveSettings(a.cfg.SettingsPath, settings); err != nil {
			return nil, fmt.Errorf("writing initial settings: %w", err)
		}
	}
	return settings, nil
}

// Close disconnects the store and closes the log file.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if err := a.store.Disconnect(ctx); err != nil {
		firstErr = err
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}

// writerTelemetry prints run output for CLI commands.
type writerTelemetry struct {
	w io.Writer
}

func (t *writerTelemetry) Log(text string) {
	io.WriteString(t.w, text)
}

func (t *writerTelemetry) Status(lines []string, percentage int) {
	fmt.Fprintf(t.w, "[%3d%%] %s\n", session.ClampPercentage(percentage), strings.Join(lines, " | "))
}
