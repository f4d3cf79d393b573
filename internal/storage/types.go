package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record id has no row.
	ErrNotFound = errors.New("storage: record not found")

	// ErrDisabled is returned by a nil/closed store.
	ErrDisabled = errors.New("storage: disabled")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process store (development, tests)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DraftStatus is the persisted lifecycle status of a draft.
// The transition is one-way: draft -> sent. Nothing ever reverts it.
type DraftStatus string

const (
	StatusDraft DraftStatus = "draft"
	StatusSent  DraftStatus = "sent"
)

// Draft is one announcement under construction or already sent.
//
// Channels keeps the caller's ordering; duplicates are the caller's
// responsibility. Channel is the single review channel where the preview
// is posted. MessageTS stays empty until the preview post succeeds.
type Draft struct {
	ID        string
	CreatedBy string
	Message   string
	Channels  []string
	Channel   string
	MessageTS string
	Icon      string
	Username  string
	Status    DraftStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Announcement is one immutable audit record per (draft, destination)
// send attempt. Exactly one is written per destination per dispatch,
// success or not.
type Announcement struct {
	ID           string
	DraftID      string
	Success      bool
	ErrorMessage string
	Channel      string
	MessageTS    string
	CreatedAt    time.Time
}

// Execution is a parked workflow run awaiting an external interaction.
// Values holds the run's accumulated named values as JSON so a resume in a
// later process has no dependency on in-memory state.
type Execution struct {
	ID          string
	Workflow    string
	Stage       int
	Correlation string
	Values      []byte
	CreatedAt   time.Time
}
