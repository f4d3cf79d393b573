// Package retention prunes old announcement audit records on a schedule.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"annobot/internal/storage"
	"annobot/pkg/logx"
)

type Config struct {
	Enabled bool
	// MaxAge is how long audit records are kept. Default 90 days.
	MaxAge time.Duration
	// Schedule is a cron expression. Default: daily at 04:00.
	Schedule string
}

type Service struct {
	cfg   Config
	store storage.Store
	log   logx.Logger
	cron  *cron.Cron
}

func New(cfg Config, store storage.Store, log logx.Logger) *Service {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 90 * 24 * time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 4 * * *"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, log: log}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.log.Debug("retention disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("retention scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("max_age", s.cfg.MaxAge))
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// Sweep removes audit records older than the retention window. Drafts are
// never touched; they are few and user-owned.
func (s *Service) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.MaxAge)
	n, err := s.store.PruneAnnouncements(ctx, cutoff)
	if err != nil {
		s.log.Error("prune audit records", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("audit records pruned", logx.Int("count", n), logx.Time("cutoff", cutoff))
	}
}
