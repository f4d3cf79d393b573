package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"annobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- drafts ----

func (s *sqliteStore) PutDraft(ctx context.Context, d Draft) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	channels, err := json.Marshal(d.Channels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts(id, created_by, message, channels, channel, message_ts, icon, username, status, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   message=excluded.message, status=excluded.status, updated_at=excluded.updated_at`,
		d.ID, d.CreatedBy, d.Message, string(channels), d.Channel, d.MessageTS,
		d.Icon, d.Username, string(d.Status),
		d.CreatedAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetDraft(ctx context.Context, id string) (Draft, error) {
	if s == nil || s.db == nil {
		return Draft{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_by, message, channels, channel, message_ts, icon, username, status, created_at, updated_at
		 FROM drafts WHERE id = ?`, id)

	var d Draft
	var channels, created, updated, status string
	err := row.Scan(&d.ID, &d.CreatedBy, &d.Message, &channels, &d.Channel,
		&d.MessageTS, &d.Icon, &d.Username, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, err
	}
	if err := json.Unmarshal([]byte(channels), &d.Channels); err != nil {
		return Draft{}, fmt.Errorf("draft %s: bad channels column: %w", id, err)
	}
	d.Status = DraftStatus(status)
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return d, nil
}

func (s *sqliteStore) UpdateDraftMessage(ctx context.Context, id, message string) error {
	return s.updateDraftColumn(ctx, id, "message", message)
}

func (s *sqliteStore) UpdateDraftStatus(ctx context.Context, id string, status DraftStatus) error {
	return s.updateDraftColumn(ctx, id, "status", string(status))
}

func (s *sqliteStore) SetDraftPreview(ctx context.Context, id, messageTS string) error {
	return s.updateDraftColumn(ctx, id, "message_ts", messageTS)
}

func (s *sqliteStore) updateDraftColumn(ctx context.Context, id, col, val string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	// col is one of a fixed set of callers above, never user input.
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE drafts SET %s = ?, updated_at = ? WHERE id = ?`, col),
		val, time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteDraft(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- announcements ----

func (s *sqliteStore) PutAnnouncement(ctx context.Context, a Announcement) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announcements(id, draft_id, success, error_message, channel, message_ts, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		a.ID, a.DraftID, a.Success, a.ErrorMessage, a.Channel, a.MessageTS,
		a.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListAnnouncementsByDraft(ctx context.Context, draftID string) ([]Announcement, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, draft_id, success, error_message, channel, message_ts, created_at
		 FROM announcements WHERE draft_id = ? ORDER BY created_at, id`, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var a Announcement
		var created string
		if err := rows.Scan(&a.ID, &a.DraftID, &a.Success, &a.ErrorMessage,
			&a.Channel, &a.MessageTS, &created); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneAnnouncements(ctx context.Context, olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM announcements WHERE created_at < ?`,
		olderThan.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- executions ----

func (s *sqliteStore) PutExecution(ctx context.Context, e Execution) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions(id, workflow, stage, correlation, vals, created_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET stage=excluded.stage, vals=excluded.vals`,
		e.ID, e.Workflow, e.Stage, e.Correlation, string(e.Values),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetExecution(ctx context.Context, id string) (Execution, error) {
	if s == nil || s.db == nil {
		return Execution{}, ErrDisabled
	}
	return s.scanExecution(s.db.QueryRowContext(ctx,
		`SELECT id, workflow, stage, correlation, vals, created_at FROM executions WHERE id = ?`, id))
}

func (s *sqliteStore) FindExecutionByCorrelation(ctx context.Context, key string) (Execution, error) {
	if s == nil || s.db == nil {
		return Execution{}, ErrDisabled
	}
	return s.scanExecution(s.db.QueryRowContext(ctx,
		`SELECT id, workflow, stage, correlation, vals, created_at
		 FROM executions WHERE correlation = ? ORDER BY created_at DESC LIMIT 1`, key))
}

func (s *sqliteStore) scanExecution(row *sql.Row) (Execution, error) {
	var e Execution
	var vals, created string
	err := row.Scan(&e.ID, &e.Workflow, &e.Stage, &e.Correlation, &vals, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, ErrNotFound
	}
	if err != nil {
		return Execution{}, err
	}
	e.Values = []byte(vals)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

func (s *sqliteStore) DeleteExecution(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	return err
}
