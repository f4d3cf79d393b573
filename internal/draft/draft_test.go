package draft

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"annobot/internal/gateway"
	"annobot/internal/render"
	"annobot/internal/storage"
	"annobot/internal/workflow"
	"annobot/pkg/logx"
	"annobot/pkg/surface"
)

type fakeGateway struct {
	gateway.Gateway

	seq      int
	posts    []postedMsg
	updates  []postedMsg
	deleted  []gateway.MessageRef
	surfaces []gateway.Surface
}

type postedMsg struct {
	ref  gateway.MessageRef
	text string
	opt  *gateway.SendOptions
}

func (f *fakeGateway) PostMessage(_ context.Context, channel, text string, opt *gateway.SendOptions) (gateway.MessageRef, error) {
	f.seq++
	ref := gateway.MessageRef{Channel: channel, TS: "msg-" + strconv.Itoa(f.seq)}
	f.posts = append(f.posts, postedMsg{ref: ref, text: text, opt: opt})
	return ref, nil
}

func (f *fakeGateway) UpdateMessage(_ context.Context, ref gateway.MessageRef, text string, opt *gateway.SendOptions) error {
	f.updates = append(f.updates, postedMsg{ref: ref, text: text, opt: opt})
	return nil
}

func (f *fakeGateway) DeleteMessage(_ context.Context, ref gateway.MessageRef) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeGateway) OpenSurface(_ context.Context, _ gateway.Pointer, s gateway.Surface) error {
	f.surfaces = append(f.surfaces, s)
	return nil
}

func (f *fakeGateway) AnswerCallback(context.Context, string, string) error { return nil }

// harness wires a manager against a real engine so suspend and resume run
// through persisted executions, exactly as in production.
type harness struct {
	st   *storage.Memory
	gw   *fakeGateway
	eng  *workflow.Engine
	mgr  *Manager
	sent []workflow.Values // inputs seen by the stage after the draft stage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{st: storage.NewMemory(), gw: &fakeGateway{}}
	h.eng = workflow.NewEngine(h.st, logx.Nop(), nil)
	h.mgr = NewManager(h.st, h.gw, h.eng, nil, logx.Nop())

	h.eng.Register(workflow.Workflow{
		Name: "create_announcement",
		Stages: []workflow.Stage{
			h.mgr.CreateStage(),
			{
				Name: "record",
				Run: func(_ context.Context, in workflow.Values) (workflow.Values, error) {
					h.sent = append(h.sent, in.Clone())
					return nil, nil
				},
			},
		},
	})
	return h
}

func (h *harness) start(t *testing.T) storage.Draft {
	t.Helper()
	_, err := h.eng.StartRun(context.Background(), "create_announcement", workflow.Values{
		"created_by": "u1",
		"message":    "ship it at noon",
		"channels":   []string{"100", "200"},
		"channel":    "900",
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if len(h.gw.posts) != 1 {
		t.Fatalf("preview posted %d times", len(h.gw.posts))
	}

	// Recover the draft id from the preview's send button.
	data := h.gw.posts[0].opt.Buttons[0][0].Data
	_, action, id := surface.Split(data)
	if action != render.ActionSend || id == "" {
		t.Fatalf("send button data %q", data)
	}
	d, err := h.st.GetDraft(context.Background(), id)
	if err != nil {
		t.Fatalf("draft row missing: %v", err)
	}
	return d
}

func (h *harness) callback(d storage.Draft, action string) *gateway.Callback {
	return &gateway.Callback{
		ID:        "cb1",
		Channel:   d.Channel,
		MessageTS: d.MessageTS,
		UserID:    "u1",
		Data:      surface.Data(render.CallbackNS, action, d.ID),
	}
}

func TestCreateStagePersistsBeforePreview(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.start(t)

	if d.Status != storage.StatusDraft {
		t.Errorf("status %q", d.Status)
	}
	if d.MessageTS != h.gw.posts[0].ref.TS {
		t.Errorf("preview ts %q not recorded on the row (got %q)", h.gw.posts[0].ref.TS, d.MessageTS)
	}
	if _, err := h.eng.FindByCorrelation(context.Background(), d.ID); err != nil {
		t.Errorf("run not parked under the draft id: %v", err)
	}
	if len(h.sent) != 0 {
		t.Errorf("later stage ran while suspended")
	}
}

func TestEditRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.start(t)

	if err := h.mgr.HandleCallback(context.Background(), h.callback(d, render.ActionEdit)); err != nil {
		t.Fatalf("edit callback: %v", err)
	}
	if len(h.gw.surfaces) != 1 {
		t.Fatalf("edit surface not opened")
	}
	s := h.gw.surfaces[0]
	if s.CallbackID != render.EditSurfaceID || s.Initial != d.Message {
		t.Fatalf("surface: %+v", s)
	}

	// Submit a new message through the metadata the surface carried.
	err := h.mgr.HandleSubmission(context.Background(), &gateway.Submission{
		CallbackID: render.EditSurfaceID,
		Metadata:   s.Metadata,
		Value:      "ship it at midnight",
		UserID:     "u2",
	})
	if err != nil {
		t.Fatalf("edit submission: %v", err)
	}

	got, err := h.st.GetDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != "ship it at midnight" {
		t.Errorf("message %q after edit", got.Message)
	}
	if len(h.gw.updates) != 1 {
		t.Fatalf("preview rewritten %d times", len(h.gw.updates))
	}
	up := h.gw.updates[0]
	if up.ref != (gateway.MessageRef{Channel: d.Channel, TS: d.MessageTS}) {
		t.Errorf("rewrote wrong message: %+v", up.ref)
	}
	if !strings.Contains(up.text, "ship it at midnight") {
		t.Errorf("rewritten preview misses new message: %q", up.text)
	}
	if up.opt == nil || len(up.opt.Buttons) == 0 {
		t.Errorf("rewritten preview lost its controls")
	}
}

func TestConfirmResumesWithLatestMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.start(t)

	// Edit after the confirm surface would have been rendered: the resume
	// must still carry the latest stored message.
	if err := h.st.UpdateDraftMessage(context.Background(), d.ID, "actually, tomorrow"); err != nil {
		t.Fatal(err)
	}

	if err := h.mgr.HandleCallback(context.Background(), h.callback(d, render.ActionSend)); err != nil {
		t.Fatalf("send callback: %v", err)
	}
	if len(h.gw.surfaces) != 1 || h.gw.surfaces[0].CallbackID != render.ConfirmSurfaceID {
		t.Fatalf("confirm surface not opened: %+v", h.gw.surfaces)
	}

	err := h.mgr.HandleSubmission(context.Background(), &gateway.Submission{
		CallbackID: render.ConfirmSurfaceID,
		Metadata:   h.gw.surfaces[0].Metadata,
		UserID:     "u1",
	})
	if err != nil {
		t.Fatalf("confirm submission: %v", err)
	}

	if len(h.sent) != 1 {
		t.Fatalf("resumed stage ran %d times", len(h.sent))
	}
	in := h.sent[0]
	if in.String("draft_id") != d.ID {
		t.Errorf("draft_id %q", in.String("draft_id"))
	}
	if in.String("message") != "actually, tomorrow" {
		t.Errorf("resume carried stale message %q", in.String("message"))
	}
	if in.String("message_ts") != d.MessageTS {
		t.Errorf("message_ts %q", in.String("message_ts"))
	}
	// Original inputs survive the park and rejoin the resumed values.
	if got := in.StringSlice("channels"); len(got) != 2 {
		t.Errorf("channels lost across park: %v", got)
	}

	if _, err := h.eng.FindByCorrelation(context.Background(), d.ID); err == nil {
		t.Error("parked run still present after resume")
	}
}

func TestDiscardRemovesRowAndPreview(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.start(t)

	if err := h.mgr.HandleCallback(context.Background(), h.callback(d, render.ActionDiscard)); err != nil {
		t.Fatalf("discard callback: %v", err)
	}

	if _, err := h.st.GetDraft(context.Background(), d.ID); err != storage.ErrNotFound {
		t.Errorf("draft row still present: %v", err)
	}
	if len(h.gw.deleted) != 1 || h.gw.deleted[0].TS != d.MessageTS {
		t.Errorf("preview not deleted: %+v", h.gw.deleted)
	}
	if _, err := h.eng.FindByCorrelation(context.Background(), d.ID); err == nil {
		t.Error("parked run survived discard")
	}
	if len(h.sent) != 0 {
		t.Error("later stage ran after discard")
	}
}

func TestBadMetadataIsCorrelationError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	err := h.mgr.HandleSubmission(context.Background(), &gateway.Submission{
		CallbackID: render.ConfirmSurfaceID,
		Metadata:   "!!not-base64!!",
	})
	if err == nil {
		t.Fatal("want error for undecodable metadata")
	}
	if !errors.Is(err, workflow.ErrCorrelation) {
		t.Errorf("want correlation taxonomy, got %v", err)
	}
}

func TestCallbackForMissingDraftTerminatesRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.start(t)

	if err := h.st.DeleteDraft(context.Background(), d.ID); err != nil {
		t.Fatal(err)
	}
	err := h.mgr.HandleCallback(context.Background(), h.callback(d, render.ActionEdit))
	if err == nil {
		t.Fatal("want error when the draft row is gone")
	}
	if !errors.Is(err, workflow.ErrPersistence) {
		t.Errorf("want persistence taxonomy, got %v", err)
	}
	if _, ferr := h.eng.FindByCorrelation(context.Background(), d.ID); ferr == nil {
		t.Error("run should have been terminated")
	}
}
