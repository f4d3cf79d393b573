package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"annobot/pkg/logx"
)

// Store is the persistence API used by the draft lifecycle, the dispatcher,
// and the workflow engine.
//
// Draft updates are last-writer-wins: there is no version column
// and concurrent edit/confirm paths may interleave freely.
type Store interface {
	// Drafts.
	PutDraft(ctx context.Context, d Draft) error
	GetDraft(ctx context.Context, id string) (Draft, error)
	UpdateDraftMessage(ctx context.Context, id, message string) error
	UpdateDraftStatus(ctx context.Context, id string, status DraftStatus) error
	SetDraftPreview(ctx context.Context, id, messageTS string) error
	DeleteDraft(ctx context.Context, id string) error

	// Announcements (append-only audit trail).
	PutAnnouncement(ctx context.Context, a Announcement) error
	ListAnnouncementsByDraft(ctx context.Context, draftID string) ([]Announcement, error)
	PruneAnnouncements(ctx context.Context, olderThan time.Time) (int, error)

	// Parked workflow executions.
	PutExecution(ctx context.Context, e Execution) error
	GetExecution(ctx context.Context, id string) (Execution, error)
	FindExecutionByCorrelation(ctx context.Context, key string) (Execution, error)
	DeleteExecution(ctx context.Context, id string) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
