package flowscan

import (
	"context"
	"fmt"

	"flowscan/internal/model"
)

// Pipeline is the production work unit: it runs a Scanner and, when the scanner exits
// cleanly, persists the flows it produced.
type Pipeline struct {
	scanner Scanner
	store   *Store
	clock   Clock
	idgen   IDGenerator
	logger  Logger
}

// NewPipeline creates a Pipeline that persists scanner results through store.
func NewPipeline(scanner Scanner, store *Store, clock Clock, idgen IDGenerator, logger Logger) *Pipeline {
	return &Pipeline{
		scanner: scanner,
		store:   store,
		clock:   clock,
		idgen:   idgen,
		logger:  logger,
	}
}

// Run implements Runner.
// A stop request (ctx cancelled) skips persistence; persistence that has started is
// never cancelled by a stop.
func (p *Pipeline) Run(ctx context.Context, tel Telemetry) (int, error) {
	code, err := p.scanner.Run(ctx, tel)
	if err != nil || code != 0 {
		return code, err
	}
	if ctx.Err() != nil {
		return code, nil
	}

	flows, err := p.scanner.Results()
	if err != nil {
		return 1, fmt.Errorf("reading scan results: %w", err)
	}

	persistCtx := context.WithoutCancel(ctx)
	for i, flow := range flows {
		p.fillDefaults(flow)
		if err := p.store.Persist(persistCtx, flow); err != nil {
			tel.Log(fmt.Sprintf("persist failed after %d of %d flows: %v\n", i, len(flows), err))
			return 1, fmt.Errorf("persisting results: %w", err)
		}
	}

	p.logger.Info("scan results persisted", "flows", len(flows))
	tel.Log(fmt.Sprintf("stored %d flow(s)\n", len(flows)))
	return 0, nil
}

// fillDefaults assigns ids and timestamps the scanner left empty.
// Modified defaults to Created so that modified >= created holds.
func (p *Pipeline) fillDefaults(flow *model.Flow) {
	if flow == nil {
		return
	}
	if flow.ID == "" {
		flow.ID = p.idgen.New()
	}
	now := p.clock.Now()
	if flow.Created.IsZero() {
		flow.Created = now
	}
	if flow.Modified.IsZero() {
		flow.Modified = flow.Created
	}
	for i := range flow.Reviews {
		r := &flow.Reviews[i]
		if r.ID == "" {
			r.ID = p.idgen.New()
		}
		if r.Created.IsZero() {
			r.Created = now
		}
		if r.Modified.IsZero() {
			r.Modified = r.Created
		}
	}
}
