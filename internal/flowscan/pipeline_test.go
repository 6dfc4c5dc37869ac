package flowscan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"flowscan/internal/flowscan"
	"flowscan/internal/model"
	"flowscan/internal/testutil"
)

// fakeScanner emits one log line and returns a fixed result.
type fakeScanner struct {
	code      int
	err       error
	flows     []*model.Flow
	resultErr error
	// onRun runs inside Run, e.g. to cancel the context.
	onRun func()
}

func (s *fakeScanner) Run(_ context.Context, tel flowscan.Telemetry) (int, error) {
	tel.Log("scanning\n")
	if s.onRun != nil {
		s.onRun()
	}
	return s.code, s.err
}

func (s *fakeScanner) Results() ([]*model.Flow, error) {
	return s.flows, s.resultErr
}

func newPipeline(t *testing.T, scanner flowscan.Scanner) (*flowscan.Pipeline, *testutil.MemoryBackend) {
	t.Helper()
	store, backend := newConnectedStore(t)
	p := flowscan.NewPipeline(scanner, store, testutil.FixedClock(), testutil.NewStubIDGenerator(), flowscan.NewNopLogger())
	return p, backend
}

func TestPipeline_Run(t *testing.T) {
	t.Run("persists results after clean exit", func(t *testing.T) {
		scanner := &fakeScanner{flows: []*model.Flow{
			{ID: "f1", Title: "one", Reviews: []model.Review{{Comment: "nice"}}},
			{Title: "two"},
		}}
		p, backend := newPipeline(t, scanner)
		tel := &testutil.RecordingTelemetry{}

		code, err := p.Run(context.Background(), tel)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if code != 0 {
			t.Errorf("Run() code = %d, want 0", code)
		}

		got := backend.Flows()
		if len(got) != 2 {
			t.Fatalf("stored flows = %d, want 2", len(got))
		}
		if got[0].Reviews[0].ID != "id-1" {
			t.Errorf("review id = %q, want id-1", got[0].Reviews[0].ID)
		}
		if got[0].Reviews[0].FlowID != "f1" {
			t.Errorf("review flowId = %q, want f1", got[0].Reviews[0].FlowID)
		}
		if got[1].ID != "id-2" {
			t.Errorf("generated flow id = %q, want id-2", got[1].ID)
		}
		want := testutil.FixedClock().Now()
		if !got[1].Created.Equal(want) || !got[1].Modified.Equal(want) {
			t.Errorf("timestamps = %v/%v, want %v", got[1].Created, got[1].Modified, want)
		}
		if !strings.Contains(tel.Output(), "stored 2 flow(s)") {
			t.Errorf("log = %q, want stored summary", tel.Output())
		}
	})

	t.Run("keeps explicit timestamps", func(t *testing.T) {
		created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		scanner := &fakeScanner{flows: []*model.Flow{{ID: "f1", Created: created}}}
		p, backend := newPipeline(t, scanner)

		if _, err := p.Run(context.Background(), &testutil.RecordingTelemetry{}); err != nil {
			t.Fatal(err)
		}
		got := backend.Flows()[0]
		if !got.Created.Equal(created) || !got.Modified.Equal(created) {
			t.Errorf("timestamps = %v/%v, want both %v", got.Created, got.Modified, created)
		}
	})

	t.Run("failed scan skips persistence", func(t *testing.T) {
		scanner := &fakeScanner{code: 3, flows: []*model.Flow{{ID: "f1"}}}
		p, backend := newPipeline(t, scanner)

		code, err := p.Run(context.Background(), &testutil.RecordingTelemetry{})
		if err != nil {
			t.Fatal(err)
		}
		if code != 3 {
			t.Errorf("Run() code = %d, want 3", code)
		}
		if len(backend.Flows()) != 0 {
			t.Error("flows persisted after failed scan")
		}
	})

	t.Run("stopped scan skips persistence", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		scanner := &fakeScanner{flows: []*model.Flow{{ID: "f1"}}, onRun: cancel}
		p, backend := newPipeline(t, scanner)

		if _, err := p.Run(ctx, &testutil.RecordingTelemetry{}); err != nil {
			t.Fatal(err)
		}
		if len(backend.Flows()) != 0 {
			t.Error("flows persisted after stop")
		}
	})

	t.Run("results error", func(t *testing.T) {
		scanner := &fakeScanner{resultErr: errors.New("bad json")}
		p, _ := newPipeline(t, scanner)

		code, err := p.Run(context.Background(), &testutil.RecordingTelemetry{})
		if err == nil {
			t.Fatal("Run() expected error")
		}
		if code == 0 {
			t.Error("Run() code = 0, want non-zero")
		}
	})

	t.Run("persist failure makes exit non-zero", func(t *testing.T) {
		scanner := &fakeScanner{flows: []*model.Flow{{ID: "ok"}, {ID: "bad"}, {ID: "later"}}}
		p, backend := newPipeline(t, scanner)
		backend.FailFlow = "bad"
		tel := &testutil.RecordingTelemetry{}

		code, err := p.Run(context.Background(), tel)
		var perr *flowscan.PersistError
		if !errors.As(err, &perr) {
			t.Fatalf("Run() error = %v, want *PersistError", err)
		}
		if code != 1 {
			t.Errorf("Run() code = %d, want 1", code)
		}
		if len(backend.Flows()) != 1 {
			t.Errorf("stored flows = %d, want 1", len(backend.Flows()))
		}
		if !strings.Contains(tel.Output(), "persist failed after 1 of 3 flows") {
			t.Errorf("log = %q", tel.Output())
		}
	})
}
