package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"annobot/internal/eventbus"
	"annobot/internal/storage"
	"annobot/pkg/logx"
)

// Stage is one step of a workflow. Run receives the merged values
// accumulated so far and returns this stage's named outputs.
//
// Returning a *SuspendError parks the run instead of completing the stage;
// everything else is either success (outputs, nil) or a terminal error.
type Stage struct {
	Name string
	Run  func(ctx context.Context, in Values) (Values, error)
}

// Workflow is an ordered stage list. Outputs of one stage become inputs of
// the next by name.
type Workflow struct {
	Name   string
	Stages []Stage
}

// Engine runs workflows and owns the park/resume machinery. Parked runs
// are persisted through the store, so a resume does not depend on the
// suspending process still being alive.
type Engine struct {
	store storage.Store
	log   logx.Logger
	bus   eventbus.Bus

	mu        sync.RWMutex
	workflows map[string]Workflow
}

func NewEngine(store storage.Store, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:     store,
		log:       log,
		bus:       bus,
		workflows: map[string]Workflow{},
	}
}

func (e *Engine) Register(w Workflow) {
	e.mu.Lock()
	e.workflows[w.Name] = w
	e.mu.Unlock()
}

// StartRun executes the named workflow from its first stage. It returns
// the run id; the run may have completed, parked, or failed by the time
// StartRun returns (the error reports the failure case).
func (e *Engine) StartRun(ctx context.Context, name string, inputs Values) (string, error) {
	e.mu.RLock()
	w, ok := e.workflows[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("workflow %q not registered", name)
	}

	runID := uuid.NewString()
	if inputs == nil {
		inputs = Values{}
	}
	return runID, e.runFrom(ctx, w, runID, 0, inputs)
}

// runFrom executes stages [from..] with the accumulated values. A suspend
// signal persists the run and returns nil: parking is not a failure.
func (e *Engine) runFrom(ctx context.Context, w Workflow, runID string, from int, vals Values) error {
	for i := from; i < len(w.Stages); i++ {
		st := w.Stages[i]
		out, err := st.Run(ctx, vals)

		var susp *SuspendError
		if errors.As(err, &susp) {
			b, merr := vals.marshal()
			if merr != nil {
				return Persistence("marshal parked run", merr)
			}
			rec := storage.Execution{
				ID:          runID,
				Workflow:    w.Name,
				Stage:       i,
				Correlation: susp.Correlation,
				Values:      b,
			}
			if perr := e.store.PutExecution(ctx, rec); perr != nil {
				return Persistence("park run", perr)
			}
			e.log.Info("run suspended",
				logx.String("workflow", w.Name),
				logx.String("run", runID),
				logx.String("stage", st.Name),
				logx.String("correlation", susp.Correlation))
			e.publish(eventbus.EventRunSuspended, runID)
			return nil
		}
		if err != nil {
			e.log.Error("stage failed",
				logx.String("workflow", w.Name),
				logx.String("run", runID),
				logx.String("stage", st.Name),
				logx.Err(err))
			e.publish(eventbus.EventRunFailed, runID)
			return err
		}
		vals = vals.Merge(out)
	}

	e.log.Info("run completed", logx.String("workflow", w.Name), logx.String("run", runID))
	e.publish(eventbus.EventRunCompleted, runID)
	return nil
}

// FindByCorrelation locates the parked run for a correlation key (the
// draft id). This is the only lookup a resume handler needs: no in-process
// state survives between suspend and resume.
func (e *Engine) FindByCorrelation(ctx context.Context, key string) (storage.Execution, error) {
	return e.store.FindExecutionByCorrelation(ctx, key)
}

// CompleteSuccess resumes a parked run: the suspended stage's outputs are
// merged in and execution continues with the following stage.
func (e *Engine) CompleteSuccess(ctx context.Context, execID string, outputs Values) error {
	rec, err := e.store.GetExecution(ctx, execID)
	if err != nil {
		return Persistence("load parked run", err)
	}
	e.mu.RLock()
	w, ok := e.workflows[rec.Workflow]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("workflow %q no longer registered", rec.Workflow)
	}

	vals, err := unmarshalValues(rec.Values)
	if err != nil {
		return Persistence("decode parked run", err)
	}
	if err := e.store.DeleteExecution(ctx, execID); err != nil {
		return Persistence("unpark run", err)
	}

	e.log.Info("run resumed",
		logx.String("workflow", rec.Workflow),
		logx.String("run", rec.ID),
		logx.Int("stage", rec.Stage))
	return e.runFrom(ctx, w, rec.ID, rec.Stage+1, vals.Merge(outputs))
}

// CompleteError terminates a parked run with an error outcome. The parked
// record is removed; the failure is logged and published for operator
// visibility rather than retried.
func (e *Engine) CompleteError(ctx context.Context, execID, msg string) error {
	rec, err := e.store.GetExecution(ctx, execID)
	if err != nil {
		return Persistence("load parked run", err)
	}
	if err := e.store.DeleteExecution(ctx, execID); err != nil {
		return Persistence("unpark run", err)
	}
	e.log.Error("run terminated",
		logx.String("workflow", rec.Workflow),
		logx.String("run", rec.ID),
		logx.String("error", msg))
	e.publish(eventbus.EventRunFailed, rec.ID)
	return nil
}

func (e *Engine) publish(typ, runID string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: runID})
}
