package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDraftLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	d := Draft{
		ID:        "d1",
		CreatedBy: "U1",
		Message:   "Hello",
		Channels:  []string{"C2", "C3"},
		Channel:   "C1",
		Status:    StatusDraft,
	}
	if err := m.PutDraft(ctx, d); err != nil {
		t.Fatalf("PutDraft: %v", err)
	}

	got, err := m.GetDraft(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if got.Status != StatusDraft || got.MessageTS != "" {
		t.Fatalf("fresh draft = %+v", got)
	}
	if len(got.Channels) != 2 || got.Channels[0] != "C2" {
		t.Fatalf("channels = %v", got.Channels)
	}

	if err := m.SetDraftPreview(ctx, "d1", "101"); err != nil {
		t.Fatalf("SetDraftPreview: %v", err)
	}
	if err := m.UpdateDraftMessage(ctx, "d1", "Hello v2"); err != nil {
		t.Fatalf("UpdateDraftMessage: %v", err)
	}
	if err := m.UpdateDraftStatus(ctx, "d1", StatusSent); err != nil {
		t.Fatalf("UpdateDraftStatus: %v", err)
	}

	got, _ = m.GetDraft(ctx, "d1")
	if got.MessageTS != "101" || got.Message != "Hello v2" || got.Status != StatusSent {
		t.Fatalf("after updates: %+v", got)
	}

	if err := m.DeleteDraft(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
	if _, err := m.GetDraft(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.DeleteDraft(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMissingDraft(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	if err := m.UpdateDraftMessage(context.Background(), "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnnouncementsAppendOnlyAndOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	base := time.Now()
	for i, ch := range []string{"C2", "C3", "C4"} {
		a := Announcement{
			ID:        "a" + ch,
			DraftID:   "d1",
			Channel:   ch,
			Success:   i != 1,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if i == 1 {
			a.ErrorMessage = "channel_not_found"
		}
		if err := m.PutAnnouncement(ctx, a); err != nil {
			t.Fatalf("PutAnnouncement: %v", err)
		}
	}

	list, err := m.ListAnnouncementsByDraft(ctx, "d1")
	if err != nil {
		t.Fatalf("ListAnnouncementsByDraft: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	if list[1].Success || list[1].ErrorMessage == "" {
		t.Fatalf("failed record = %+v", list[1])
	}
	if list[0].Channel != "C2" || list[2].Channel != "C4" {
		t.Fatalf("order = %v, %v, %v", list[0].Channel, list[1].Channel, list[2].Channel)
	}
}

func TestPruneAnnouncements(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	now := time.Now()
	_ = m.PutAnnouncement(ctx, Announcement{ID: "old", DraftID: "d", CreatedAt: now.Add(-48 * time.Hour)})
	_ = m.PutAnnouncement(ctx, Announcement{ID: "new", DraftID: "d", CreatedAt: now})

	n, err := m.PruneAnnouncements(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneAnnouncements: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	list, _ := m.ListAnnouncementsByDraft(ctx, "d")
	if len(list) != 1 || list[0].ID != "new" {
		t.Fatalf("remaining = %+v", list)
	}
}

func TestExecutionCorrelation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	e := Execution{ID: "x1", Workflow: "announce", Stage: 1, Correlation: "d1", Values: []byte(`{"a":1}`)}
	if err := m.PutExecution(ctx, e); err != nil {
		t.Fatalf("PutExecution: %v", err)
	}

	got, err := m.FindExecutionByCorrelation(ctx, "d1")
	if err != nil || got.ID != "x1" {
		t.Fatalf("FindExecutionByCorrelation = (%+v, %v)", got, err)
	}
	if _, err := m.FindExecutionByCorrelation(ctx, "d2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := m.DeleteExecution(ctx, "x1"); err != nil {
		t.Fatalf("DeleteExecution: %v", err)
	}
	if _, err := m.GetExecution(ctx, "x1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "memory"}, testLogger())
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if _, ok := st.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", st)
	}
	if _, err := Open(Config{Driver: "postgres"}, testLogger()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
