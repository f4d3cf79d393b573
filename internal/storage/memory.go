package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and the "memory" driver;
// semantics mirror the sqlite driver exactly.
type Memory struct {
	mu            sync.RWMutex
	drafts        map[string]Draft
	announcements []Announcement
	executions    map[string]Execution
}

func NewMemory() *Memory {
	return &Memory{
		drafts:     map[string]Draft{},
		executions: map[string]Execution{},
	}
}

func (m *Memory) Close() error { return nil }

// ---- drafts ----

func (m *Memory) PutDraft(_ context.Context, d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Channels = append([]string(nil), d.Channels...)
	m.drafts[d.ID] = d
	return nil
}

func (m *Memory) GetDraft(_ context.Context, id string) (Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	d.Channels = append([]string(nil), d.Channels...)
	return d, nil
}

func (m *Memory) UpdateDraftMessage(_ context.Context, id, message string) error {
	return m.mutateDraft(id, func(d *Draft) { d.Message = message })
}

func (m *Memory) UpdateDraftStatus(_ context.Context, id string, status DraftStatus) error {
	return m.mutateDraft(id, func(d *Draft) { d.Status = status })
}

func (m *Memory) SetDraftPreview(_ context.Context, id, messageTS string) error {
	return m.mutateDraft(id, func(d *Draft) { d.MessageTS = messageTS })
}

func (m *Memory) mutateDraft(id string, fn func(*Draft)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return ErrNotFound
	}
	fn(&d)
	d.UpdatedAt = time.Now()
	m.drafts[id] = d
	return nil
}

func (m *Memory) DeleteDraft(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return ErrNotFound
	}
	delete(m.drafts, id)
	return nil
}

// ---- announcements ----

func (m *Memory) PutAnnouncement(_ context.Context, a Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.announcements = append(m.announcements, a)
	return nil
}

func (m *Memory) ListAnnouncementsByDraft(_ context.Context, draftID string) ([]Announcement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Announcement
	for _, a := range m.announcements {
		if a.DraftID == draftID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListAnnouncements returns every audit record regardless of grouping id,
// oldest first. Only the memory driver offers this; it exists for
// inspection in tests and tooling.
func (m *Memory) ListAnnouncements(_ context.Context) ([]Announcement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Announcement(nil), m.announcements...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PruneAnnouncements(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.announcements[:0]
	pruned := 0
	for _, a := range m.announcements {
		if a.CreatedAt.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, a)
	}
	m.announcements = kept
	return pruned, nil
}

// ---- executions ----

func (m *Memory) PutExecution(_ context.Context, e Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.Values = append([]byte(nil), e.Values...)
	m.executions[e.ID] = e
	return nil
}

func (m *Memory) GetExecution(_ context.Context, id string) (Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executions[id]
	if !ok {
		return Execution{}, ErrNotFound
	}
	e.Values = append([]byte(nil), e.Values...)
	return e, nil
}

func (m *Memory) FindExecutionByCorrelation(_ context.Context, key string) (Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Execution
	for id := range m.executions {
		e := m.executions[id]
		if e.Correlation != key {
			continue
		}
		if best == nil || e.CreatedAt.After(best.CreatedAt) {
			best = &e
		}
	}
	if best == nil {
		return Execution{}, ErrNotFound
	}
	out := *best
	out.Values = append([]byte(nil), out.Values...)
	return out, nil
}

func (m *Memory) DeleteExecution(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.executions, id)
	return nil
}
