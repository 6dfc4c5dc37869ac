package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flowscan/internal/config"
	"flowscan/internal/flowscan"
	"flowscan/internal/model"
	"flowscan/internal/schema"
)

// DefaultConnectTimeout bounds Connect when the config leaves connect_timeout unset.
const DefaultConnectTimeout = 10 * time.Second

// sqlTimeLayout is the canonical DATETIME text form.
const sqlTimeLayout = "2006-01-02 15:04:05"

// SQLDatabase implements flowscan.Backend for relational engines.
// It is a disposable per-run report store: Setup discards everything written before.
type SQLDatabase struct {
	cfg     config.DatabaseConfig
	dialect dialect
	db      *sql.DB
	loc     *time.Location
	logger  flowscan.Logger
}

// NewSQLDatabase creates an unconnected relational backend.
func NewSQLDatabase(cfg config.DatabaseConfig, logger flowscan.Logger) (*SQLDatabase, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseName == "" {
		return nil, fmt.Errorf("database_name required for sql database")
	}
	if d.name() == "mysql" && cfg.Host == "" {
		return nil, fmt.Errorf("host required for mysql database")
	}

	return &SQLDatabase{
		cfg:     cfg,
		dialect: d,
		loc:     time.Local,
		logger:  logger,
	}, nil
}

func (s *SQLDatabase) Kind() string { return config.DatabaseSQL }

func (s *SQLDatabase) Connect(ctx context.Context) error {
	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	db, err := s.dialect.open(s.cfg, timeout)
	if err != nil {
		return &flowscan.ConnectionError{Backend: s.Kind(), Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return &flowscan.ConnectionError{Backend: s.Kind(), Err: fmt.Errorf("ping %s: %w", s.dialect.name(), err)}
	}

	s.db = db
	s.logger.Debug("sql connection established", "driver", s.dialect.name(), "host", s.cfg.Host)
	return nil
}

// Setup drops the configured database (or its tables) and recreates the catalog.
// Every call yields the same empty tables regardless of prior content.
func (s *SQLDatabase) Setup(ctx context.Context) error {
	if s.db == nil {
		return &flowscan.ProvisionError{Backend: s.Kind(), Step: "setup", Err: errors.New("not connected")}
	}

	for _, stmt := range s.dialect.provision(s.cfg.DatabaseName, schema.Tables()) {
		if _, err := s.db.ExecContext(ctx, stmt.query); err != nil {
			return &flowscan.ProvisionError{Backend: s.Kind(), Step: stmt.step, Err: err}
		}
		s.logger.Debug("provision step complete", "step", stmt.step)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Persist inserts the flow row, then each review row in order, awaiting each insert.
// Without the atomic option a failing review leaves the earlier rows committed.
func (s *SQLDatabase) Persist(ctx context.Context, flow *model.Flow) error {
	if s.db == nil {
		return &flowscan.ConnectionError{Backend: s.Kind(), Err: errors.New("not connected")}
	}

	if !s.cfg.Atomic {
		return s.insertGraph(ctx, s.db, flow)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &flowscan.PersistError{Entity: flowscan.EntityFlow, FlowID: flow.ID, Err: fmt.Errorf("starting transaction: %w", err)}
	}
	defer tx.Rollback()

	if err := s.insertGraph(ctx, tx, flow); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &flowscan.PersistError{Entity: flowscan.EntityFlow, FlowID: flow.ID, Err: fmt.Errorf("committing transaction: %w", err)}
	}
	return nil
}

func (s *SQLDatabase) insertGraph(ctx context.Context, ex execer, flow *model.Flow) error {
	flows, reviews := schema.Flows(), schema.Reviews()

	flowQuery := insertQuery(s.dialect, s.cfg.DatabaseName, flows)
	if _, err := ex.ExecContext(ctx, flowQuery, flowRecord(flow, s.NormalizeTimestamp).values(flows)...); err != nil {
		return &flowscan.PersistError{Entity: flowscan.EntityFlow, FlowID: flow.ID, Err: err}
	}

	reviewQuery := insertQuery(s.dialect, s.cfg.DatabaseName, reviews)
	for i := range flow.Reviews {
		args := reviewRecord(&flow.Reviews[i], s.NormalizeTimestamp).values(reviews)
		if _, err := ex.ExecContext(ctx, reviewQuery, args...); err != nil {
			return &flowscan.PersistError{Entity: flowscan.EntityReview, Index: i, FlowID: flow.ID, Err: err}
		}
	}
	return nil
}

func (s *SQLDatabase) Disconnect(_ context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// NormalizeTimestamp renders t as "YYYY-MM-DD HH:MM:SS" in the driver's location
// (local time unless overridden).
func (s *SQLDatabase) NormalizeTimestamp(t time.Time) any {
	return t.In(s.loc).Format(sqlTimeLayout)
}

// Compile-time check that SQLDatabase implements flowscan.Backend interface
var _ flowscan.Backend = (*SQLDatabase)(nil)
