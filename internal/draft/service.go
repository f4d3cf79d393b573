// Package draft owns the announcement draft lifecycle: creation with an
// in-channel preview, editing, discarding, and the confirm step that
// releases the suspended run to the dispatcher.
package draft

import (
	"context"

	"github.com/google/uuid"

	"annobot/internal/eventbus"
	"annobot/internal/gateway"
	"annobot/internal/render"
	"annobot/internal/storage"
	"annobot/internal/workflow"
	"annobot/pkg/logx"
)

// completer is the slice of the workflow engine the manager resumes runs
// through. *workflow.Engine satisfies it.
type completer interface {
	FindByCorrelation(ctx context.Context, key string) (storage.Execution, error)
	CompleteSuccess(ctx context.Context, execID string, outputs workflow.Values) error
	CompleteError(ctx context.Context, execID, msg string) error
}

type Manager struct {
	store  storage.Store
	gw     gateway.Gateway
	engine completer
	bus    eventbus.Bus
	log    logx.Logger
}

func NewManager(store storage.Store, gw gateway.Gateway, engine completer, bus eventbus.Bus, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{store: store, gw: gw, engine: engine, bus: bus, log: log}
}

// Surface metadata, round-tripped opaquely through the gateway. The draft
// id is the correlation key; the preview ts lets the edit handler rewrite
// the preview without another lookup of where it lives.
type editMeta struct {
	DraftID   string `json:"draft_id"`
	PreviewTS string `json:"preview_ts"`
}

type confirmMeta struct {
	DraftID string `json:"draft_id"`
}

// CreateStage persists a new draft, posts its preview into the review
// channel and suspends the run keyed by the draft id. The row is written
// before the preview: a failed post leaves a draft without a preview ts,
// never a preview without a draft.
func (m *Manager) CreateStage() workflow.Stage {
	return workflow.Stage{
		Name: "create_draft",
		Run: func(ctx context.Context, in workflow.Values) (workflow.Values, error) {
			d := storage.Draft{
				ID:        uuid.NewString(),
				CreatedBy: in.String("created_by"),
				Message:   in.String("message"),
				Channels:  in.StringSlice("channels"),
				Channel:   in.String("channel"),
				Icon:      in.String("icon"),
				Username:  in.String("username"),
				Status:    storage.StatusDraft,
			}
			if err := m.store.PutDraft(ctx, d); err != nil {
				return nil, workflow.Persistence("save draft", err)
			}

			text, buttons := render.DraftPreview(d.ID, d.CreatedBy, d.Message, d.Channels)
			ref, err := m.gw.PostMessage(ctx, d.Channel, text, &gateway.SendOptions{
				Icon:     d.Icon,
				Username: d.Username,
				Buttons:  buttons,
			})
			if err != nil {
				return nil, workflow.GatewayOp("post draft preview", err)
			}
			if err := m.store.SetDraftPreview(ctx, d.ID, ref.TS); err != nil {
				return nil, workflow.Persistence("record preview ts", err)
			}

			m.log.Info("draft created",
				logx.String("draft", d.ID),
				logx.String("by", d.CreatedBy),
				logx.Int("channels", len(d.Channels)))
			if m.bus != nil {
				m.bus.Publish(eventbus.Event{Type: eventbus.EventDraftCreated, Data: d.ID})
			}
			return nil, workflow.Suspend(d.ID)
		},
	}
}

// failRun terminates the run suspended under draftID. Used when a user
// action cannot proceed (missing draft, unopenable surface, discard).
func (m *Manager) failRun(ctx context.Context, draftID, msg string) {
	exec, err := m.engine.FindByCorrelation(ctx, draftID)
	if err != nil {
		m.log.Error("no suspended run for draft",
			logx.String("draft", draftID), logx.Err(workflow.Correlation("find run", err)))
		return
	}
	if err := m.engine.CompleteError(ctx, exec.ID, msg); err != nil {
		m.log.Error("terminate run", logx.String("draft", draftID), logx.Err(err))
	}
}
