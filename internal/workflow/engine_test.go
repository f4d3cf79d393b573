package workflow

import (
	"context"
	"errors"
	"testing"

	"annobot/internal/storage"
	"annobot/pkg/logx"
)

func testEngine() (*Engine, *storage.Memory) {
	st := storage.NewMemory()
	return NewEngine(st, logx.Nop(), nil), st
}

func TestRunToCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := testEngine()

	var got []string
	e.Register(Workflow{
		Name: "wf",
		Stages: []Stage{
			{Name: "one", Run: func(_ context.Context, in Values) (Values, error) {
				got = append(got, in.String("seed"))
				return Values{"a": "A"}, nil
			}},
			{Name: "two", Run: func(_ context.Context, in Values) (Values, error) {
				got = append(got, in.String("a"))
				return nil, nil
			}},
		},
	})

	if _, err := e.StartRun(ctx, "wf", Values{"seed": "S"}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if len(got) != 2 || got[0] != "S" || got[1] != "A" {
		t.Fatalf("threading = %v", got)
	}
}

func TestSuspendParksAndResumeContinues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := testEngine()

	var resumedWith Values
	e.Register(Workflow{
		Name: "wf",
		Stages: []Stage{
			{Name: "draft", Run: func(_ context.Context, in Values) (Values, error) {
				return nil, Suspend("d1")
			}},
			{Name: "dispatch", Run: func(_ context.Context, in Values) (Values, error) {
				resumedWith = in
				return nil, nil
			}},
		},
	})

	runID, err := e.StartRun(ctx, "wf", Values{"message": "hi", "channels": []string{"C2"}})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if resumedWith != nil {
		t.Fatal("second stage ran before resume")
	}

	rec, err := e.FindByCorrelation(ctx, "d1")
	if err != nil {
		t.Fatalf("FindByCorrelation: %v", err)
	}
	if rec.ID != runID || rec.Stage != 0 {
		t.Fatalf("parked = %+v", rec)
	}

	if err := e.CompleteSuccess(ctx, rec.ID, Values{"draft_id": "d1", "final": "edited"}); err != nil {
		t.Fatalf("CompleteSuccess: %v", err)
	}
	if resumedWith == nil {
		t.Fatal("second stage did not run after resume")
	}
	// Parked values survive the JSON round trip, outputs are merged on top.
	if resumedWith.String("message") != "hi" || resumedWith.String("final") != "edited" {
		t.Fatalf("resumed values = %v", resumedWith)
	}
	if chs := resumedWith.StringSlice("channels"); len(chs) != 1 || chs[0] != "C2" {
		t.Fatalf("channels after round trip = %v", chs)
	}

	if _, err := st.GetExecution(ctx, runID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("parked run not removed: %v", err)
	}
}

func TestCompleteErrorTerminatesRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := testEngine()

	ran := false
	e.Register(Workflow{
		Name: "wf",
		Stages: []Stage{
			{Name: "draft", Run: func(_ context.Context, _ Values) (Values, error) {
				return nil, Suspend("d1")
			}},
			{Name: "dispatch", Run: func(_ context.Context, _ Values) (Values, error) {
				ran = true
				return nil, nil
			}},
		},
	})

	runID, _ := e.StartRun(ctx, "wf", nil)
	if err := e.CompleteError(ctx, runID, "user abandoned draft"); err != nil {
		t.Fatalf("CompleteError: %v", err)
	}
	if ran {
		t.Fatal("later stage ran after CompleteError")
	}
	if _, err := st.GetExecution(ctx, runID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("parked run not removed: %v", err)
	}
}

func TestStageErrorPropagates(t *testing.T) {
	t.Parallel()
	e, _ := testEngine()
	boom := errors.New("boom")
	e.Register(Workflow{
		Name:   "wf",
		Stages: []Stage{{Name: "bad", Run: func(_ context.Context, _ Values) (Values, error) { return nil, boom }}},
	})

	if _, err := e.StartRun(context.Background(), "wf", nil); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestUnknownWorkflow(t *testing.T) {
	t.Parallel()
	e, _ := testEngine()
	if _, err := e.StartRun(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unregistered workflow")
	}
}

func TestTaxonomyWrappers(t *testing.T) {
	t.Parallel()
	base := errors.New("disk full")
	if err := Persistence("put draft", base); !errors.Is(err, ErrPersistence) || !errors.Is(err, base) {
		t.Fatalf("Persistence wrap = %v", err)
	}
	if err := GatewayOp("post message", base); !errors.Is(err, ErrGatewayOp) {
		t.Fatalf("GatewayOp wrap = %v", err)
	}
	if err := Correlation("unpack metadata", base); !errors.Is(err, ErrCorrelation) {
		t.Fatalf("Correlation wrap = %v", err)
	}
}
