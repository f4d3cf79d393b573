package draft

import (
	"context"
	"errors"

	"annobot/internal/eventbus"
	"annobot/internal/gateway"
	"annobot/internal/render"
	"annobot/internal/workflow"
	"annobot/pkg/logx"
	"annobot/pkg/surface"
)

// HandleCallback routes a button press on a draft preview. The payload is
// always the bare draft id.
func (m *Manager) HandleCallback(ctx context.Context, cb *gateway.Callback) error {
	ns, action, draftID := surface.Split(cb.Data)
	if ns != render.CallbackNS {
		return nil
	}
	if err := m.gw.AnswerCallback(ctx, cb.ID, ""); err != nil {
		m.log.Warn("answer callback", logx.Err(err))
	}

	switch action {
	case render.ActionEdit:
		return m.openEdit(ctx, cb, draftID)
	case render.ActionSend:
		return m.openConfirm(ctx, cb, draftID)
	case render.ActionDiscard:
		return m.discard(ctx, cb, draftID)
	default:
		return nil
	}
}

func (m *Manager) openEdit(ctx context.Context, cb *gateway.Callback, draftID string) error {
	d, err := m.store.GetDraft(ctx, draftID)
	if err != nil {
		m.failRun(ctx, draftID, "draft unavailable: "+err.Error())
		return workflow.Persistence("load draft for edit", err)
	}

	meta := surface.MustPackJSON(editMeta{DraftID: draftID, PreviewTS: cb.MessageTS})
	s := render.EditSurface(d.Message, meta)
	if err := m.gw.OpenSurface(ctx, gateway.Pointer{Channel: cb.Channel, UserID: cb.UserID}, s); err != nil {
		m.failRun(ctx, draftID, "edit surface failed: "+err.Error())
		return workflow.GatewayOp("open edit surface", err)
	}
	return nil
}

func (m *Manager) openConfirm(ctx context.Context, cb *gateway.Callback, draftID string) error {
	d, err := m.store.GetDraft(ctx, draftID)
	if err != nil {
		m.failRun(ctx, draftID, "draft unavailable: "+err.Error())
		return workflow.Persistence("load draft for confirm", err)
	}

	meta := surface.MustPackJSON(confirmMeta{DraftID: draftID})
	s := render.ConfirmSurface(d.Channels, meta)
	if err := m.gw.OpenSurface(ctx, gateway.Pointer{Channel: cb.Channel, UserID: cb.UserID}, s); err != nil {
		m.failRun(ctx, draftID, "confirm surface failed: "+err.Error())
		return workflow.GatewayOp("open confirm surface", err)
	}
	return nil
}

// discard removes both the draft row and its preview message. Both
// deletions are attempted even if the first fails; either failure, or
// plain success, terminates the suspended run.
func (m *Manager) discard(ctx context.Context, cb *gateway.Callback, draftID string) error {
	rowErr := m.store.DeleteDraft(ctx, draftID)
	msgErr := m.gw.DeleteMessage(ctx, gateway.MessageRef{Channel: cb.Channel, TS: cb.MessageTS})

	if err := errors.Join(rowErr, msgErr); err != nil {
		m.failRun(ctx, draftID, "discard incomplete: "+err.Error())
		return workflow.Persistence("discard draft", err)
	}

	m.log.Info("draft discarded", logx.String("draft", draftID), logx.String("by", cb.UserID))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.EventDraftDiscarded, Data: draftID})
	}
	m.failRun(ctx, draftID, "draft discarded")
	return nil
}

// HandleSubmission routes a completed surface back to the draft it belongs
// to via its round-tripped metadata.
func (m *Manager) HandleSubmission(ctx context.Context, sub *gateway.Submission) error {
	switch sub.CallbackID {
	case render.EditSurfaceID:
		return m.applyEdit(ctx, sub)
	case render.ConfirmSurfaceID:
		return m.confirmSend(ctx, sub)
	default:
		return nil
	}
}

// applyEdit stores the new message, then rewrites the preview. The two
// steps are independent: a failed preview rewrite does not roll the stored
// message back, and neither failure terminates the suspended run. Last
// write wins across concurrent editors.
func (m *Manager) applyEdit(ctx context.Context, sub *gateway.Submission) error {
	var meta editMeta
	if err := surface.UnpackJSON(sub.Metadata, &meta); err != nil {
		return workflow.Correlation("decode edit metadata", err)
	}

	if err := m.store.UpdateDraftMessage(ctx, meta.DraftID, sub.Value); err != nil {
		m.log.Error("store edited message", logx.String("draft", meta.DraftID), logx.Err(err))
		return workflow.Persistence("store edited message", err)
	}

	d, err := m.store.GetDraft(ctx, meta.DraftID)
	if err != nil {
		m.log.Error("reload draft after edit", logx.String("draft", meta.DraftID), logx.Err(err))
		return workflow.Persistence("reload draft after edit", err)
	}
	text, buttons := render.DraftPreview(d.ID, d.CreatedBy, d.Message, d.Channels)
	ref := gateway.MessageRef{Channel: d.Channel, TS: meta.PreviewTS}
	if err := m.gw.UpdateMessage(ctx, ref, text, &gateway.SendOptions{Buttons: buttons}); err != nil {
		m.log.Error("rewrite preview after edit", logx.String("draft", meta.DraftID), logx.Err(err))
		return workflow.GatewayOp("rewrite preview", err)
	}

	m.log.Info("draft edited", logx.String("draft", meta.DraftID), logx.String("by", sub.UserID))
	return nil
}

// confirmSend re-reads the draft so the dispatch always carries the latest
// stored message, then resumes the parked run with it.
func (m *Manager) confirmSend(ctx context.Context, sub *gateway.Submission) error {
	var meta confirmMeta
	if err := surface.UnpackJSON(sub.Metadata, &meta); err != nil {
		return workflow.Correlation("decode confirm metadata", err)
	}

	d, err := m.store.GetDraft(ctx, meta.DraftID)
	if err != nil {
		m.failRun(ctx, meta.DraftID, "draft unavailable at confirm: "+err.Error())
		return workflow.Persistence("load draft at confirm", err)
	}

	exec, err := m.engine.FindByCorrelation(ctx, meta.DraftID)
	if err != nil {
		return workflow.Correlation("find run for draft", err)
	}
	return m.engine.CompleteSuccess(ctx, exec.ID, workflow.Values{
		"draft_id":   d.ID,
		"message":    d.Message,
		"message_ts": d.MessageTS,
	})
}
