// Package app wires the announcement bot together: config, logging,
// storage, the Telegram adapter, the workflow engine and the draft
// lifecycle, plus the update loop that routes gateway events to them.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"annobot/internal/config"
	"annobot/internal/dispatch"
	"annobot/internal/draft"
	"annobot/internal/eventbus"
	"annobot/internal/gateway"
	"annobot/internal/gateway/telegram"
	"annobot/internal/retention"
	"annobot/internal/storage"
	"annobot/internal/summary"
	"annobot/internal/workflow"
	"annobot/pkg/logx"
)

// WorkflowCreateAnnouncement is the draft-review-dispatch pipeline.
const WorkflowCreateAnnouncement = "create_announcement"

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log      logx.Logger
	logClose func() error
	bus      eventbus.Bus
	store    storage.Store
	gw       gateway.Gateway

	engine *workflow.Engine
	mgr    *draft.Manager
	ret    *retention.Service

	updates chan gateway.Update
	cancel  context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	log, logClose, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	gw, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	engine := workflow.NewEngine(store, log.With(logx.String("comp", "workflow")), bus)
	mgr := draft.NewManager(store, gw, engine, bus, log.With(logx.String("comp", "draft")))

	disp := dispatch.New(dispatch.Config{RatePerSec: cfg.Dispatch.RatePerSec},
		store, gw, log.With(logx.String("comp", "dispatch")), bus)
	poster := summary.New(gw, log.With(logx.String("comp", "summary")), cfg.Announce.SummaryLineBudget)

	engine.Register(workflow.Workflow{
		Name:   WorkflowCreateAnnouncement,
		Stages: []workflow.Stage{mgr.CreateStage(), disp.Stage(), poster.Stage()},
	})

	var ret *retention.Service
	if rc := cfg.Retention; rc != nil {
		maxAge, err := config.ParseDurationField("retention.max_age", rc.MaxAge)
		if err != nil {
			return nil, err
		}
		ret = retention.New(retention.Config{
			Enabled:  rc.Enabled,
			MaxAge:   maxAge,
			Schedule: rc.Schedule,
		}, store, log.With(logx.String("comp", "retention")))
	}

	return &App{
		cfgm:     cfgm,
		cfg:      cfg,
		log:      log,
		logClose: logClose,
		bus:      bus,
		store:    store,
		gw:       gw,
		engine:   engine,
		mgr:      mgr,
		ret:      ret,
		updates:  make(chan gateway.Update, 256),
	}, nil
}

func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Announce.ReviewChannel) == "" {
		return fmt.Errorf("announce.review_channel is required")
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	if cfg.Announce.SummaryLineBudget < 0 {
		return fmt.Errorf("announce.summary_line_budget must be >= 0")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if rc := cfg.Retention; rc != nil {
		if _, err := config.ParseDurationField("retention.max_age", rc.MaxAge); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})
	go func() {
		if err := a.cfgm.Watch(rctx); err != nil && rctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	go a.watchBus(rctx)

	if a.ret != nil {
		if err := a.ret.Start(); err != nil {
			cancel()
			return err
		}
	}
	if err := a.gw.Start(rctx, a.updates); err != nil {
		cancel()
		return err
	}
	go a.loop(rctx)

	a.log.Info("started",
		logx.String("review_channel", a.cfg.Announce.ReviewChannel),
		logx.String("storage", a.cfg.Storage.Driver))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	err := a.gw.Stop(ctx)
	if a.ret != nil {
		a.ret.Stop()
	}
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	if a.logClose != nil {
		_ = a.logClose()
	}
	return err
}

// loop routes gateway updates. Handlers run inline: updates are rare
// (human-scale) and ordering within a draft matters.
func (a *App) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			a.handle(ctx, up)
		}
	}
}

func (a *App) handle(ctx context.Context, up gateway.Update) {
	switch up.Kind {
	case gateway.UpdateCommand:
		if up.Command == nil {
			return
		}
		a.handleCommand(ctx, up.Command)
	case gateway.UpdateCallback:
		if up.Callback == nil {
			return
		}
		if err := a.mgr.HandleCallback(ctx, up.Callback); err != nil {
			a.log.Error("callback", logx.Err(err))
		}
	case gateway.UpdateSubmission:
		if up.Submission == nil {
			return
		}
		if err := a.mgr.HandleSubmission(ctx, up.Submission); err != nil {
			a.log.Error("submission", logx.Err(err))
		}
	}
}

func (a *App) handleCommand(ctx context.Context, cmd *gateway.Command) {
	channels, message, err := ParseAnnounce(cmd.Text)
	if err != nil {
		if err != errNotAnnounce {
			a.reply(ctx, cmd.Channel, "Usage: /announce <channel,channel,...> <message>")
		}
		return
	}

	cfg := a.cfgm.Get()
	runID, err := a.engine.StartRun(ctx, WorkflowCreateAnnouncement, workflow.Values{
		"created_by": cmd.UserID,
		"message":    message,
		"channels":   channels,
		"channel":    cfg.Announce.ReviewChannel,
		"icon":       cfg.Announce.Icon,
		"username":   cfg.Announce.Username,
	})
	if err != nil {
		a.log.Error("start announcement run", logx.Err(err))
		a.reply(ctx, cmd.Channel, "Could not start the announcement. Check the logs.")
		return
	}
	a.log.Debug("announcement run started",
		logx.String("run", runID), logx.String("by", cmd.UserID))
}

func (a *App) reply(ctx context.Context, channel, text string) {
	if _, err := a.gw.PostMessage(ctx, channel, text, nil); err != nil {
		a.log.Warn("reply failed", logx.Err(err))
	}
}

// watchBus logs pipeline events at debug level for operator visibility.
func (a *App) watchBus(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}
