package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"annobot/internal/eventbus"
	"annobot/internal/gateway"
	"annobot/internal/render"
	"annobot/internal/storage"
	"annobot/internal/workflow"
	"annobot/pkg/logx"
)

type Config struct {
	// RatePerSec throttles posts across all destinations of a dispatch.
	RatePerSec int
}

// Outcome is the per-destination result of one dispatch. Order always
// matches the caller's channel order.
type Outcome struct {
	Channel   string `json:"channel"`
	Success   bool   `json:"success"`
	Permalink string `json:"permalink,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Request describes one fan-out send. DraftID is optional: when set, the
// referenced draft is transitioned to sent after all channels resolve;
// when empty, a fresh grouping id ties the audit records together.
type Request struct {
	Message  string
	Channels []string
	Icon     string
	Username string
	DraftID  string
}

// Dispatcher fans a finalized announcement out to its destinations.
//
// Per-channel failures never fail the batch; only the post-dispatch draft
// update can. Every destination gets exactly one audit record whether or
// not its post succeeded.
type Dispatcher struct {
	store   storage.Store
	gw      gateway.Gateway
	log     logx.Logger
	bus     eventbus.Bus
	limiter *rate.Limiter
}

func New(cfg Config, store storage.Store, gw gateway.Gateway, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		store:   store,
		gw:      gw,
		log:     log,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Send posts the message to every destination concurrently and joins all
// results before returning. No early exit: one channel's failure neither
// cancels nor blocks the others. Outcomes preserve input order.
func (d *Dispatcher) Send(ctx context.Context, req Request) ([]Outcome, error) {
	groupID := req.DraftID
	if groupID == "" {
		groupID = uuid.NewString()
	}

	text := render.Announcement(req.Message)
	opt := &gateway.SendOptions{Icon: req.Icon, Username: req.Username}

	outcomes := make([]Outcome, len(req.Channels))
	var wg sync.WaitGroup
	for i, ch := range req.Channels {
		wg.Add(1)
		go func(i int, ch string) {
			defer wg.Done()
			outcomes[i] = d.sendOne(ctx, groupID, ch, text, opt)
		}(i, ch)
	}
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	if failed > 0 {
		d.log.Warn("dispatch finished with failures",
			logx.String("group", groupID),
			logx.Int("total", len(outcomes)),
			logx.Int("failed", failed))
	} else {
		d.log.Info("dispatch finished",
			logx.String("group", groupID),
			logx.Int("total", len(outcomes)))
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.EventDispatchDone, Data: groupID})
	}

	// Completed sends and their audit records stand even if this step fails.
	if req.DraftID != "" {
		if err := d.markDraftSent(ctx, req.DraftID); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// sendOne posts to a single destination and always writes the audit
// record, success or not. The permalink is only resolved after a
// successful post; a permalink failure surfaces in the outcome like a
// failed post would.
func (d *Dispatcher) sendOne(ctx context.Context, groupID, channel, text string, opt *gateway.SendOptions) Outcome {
	if d.limiter != nil {
		_ = d.limiter.Wait(ctx)
	}

	out := Outcome{Channel: channel}
	rec := storage.Announcement{
		ID:      uuid.NewString(),
		DraftID: groupID,
		Channel: channel,
	}

	ref, postErr := d.gw.PostMessage(ctx, channel, text, opt)
	if postErr == nil {
		rec.Success = true
		rec.MessageTS = ref.TS

		link, err := d.gw.Permalink(ctx, ref)
		if err != nil {
			d.log.Warn("permalink failed", logx.String("channel", channel), logx.Err(err))
			out.Error = err.Error()
		} else {
			out.Success = true
			out.Permalink = link
		}
	} else {
		d.log.Warn("send failed", logx.String("channel", channel), logx.Err(postErr))
		rec.ErrorMessage = postErr.Error()
		out.Error = postErr.Error()
	}

	if err := d.store.PutAnnouncement(ctx, rec); err != nil {
		// The audit row is best-effort once the send already happened;
		// losing it must not turn a delivered announcement into a failure.
		d.log.Error("audit write failed", logx.String("channel", channel), logx.Err(err))
	}
	return out
}

// markDraftSent flips the originating draft to its terminal status and
// rewrites the preview in place to show the sent state and final content.
func (d *Dispatcher) markDraftSent(ctx context.Context, draftID string) error {
	dr, err := d.store.GetDraft(ctx, draftID)
	if err != nil {
		return workflow.Persistence("load draft for sent update", err)
	}
	if err := d.store.UpdateDraftStatus(ctx, draftID, storage.StatusSent); err != nil {
		return workflow.Persistence("mark draft sent", err)
	}

	text := render.SentPreview(dr.CreatedBy, dr.Message, dr.Channels)
	ref := gateway.MessageRef{Channel: dr.Channel, TS: dr.MessageTS}
	if err := d.gw.UpdateMessage(ctx, ref, text, nil); err != nil {
		return workflow.GatewayOp("update preview to sent", err)
	}

	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.EventDraftSent, Data: draftID})
	}
	return nil
}

// Stage adapts the dispatcher to the announcement workflow: inputs
// (message, channels, icon, username, draft_id), outputs (announcements).
func (d *Dispatcher) Stage() workflow.Stage {
	return workflow.Stage{
		Name: "send_announcement",
		Run: func(ctx context.Context, in workflow.Values) (workflow.Values, error) {
			outcomes, err := d.Send(ctx, Request{
				Message:  in.String("message"),
				Channels: in.StringSlice("channels"),
				Icon:     in.String("icon"),
				Username: in.String("username"),
				DraftID:  in.String("draft_id"),
			})
			if err != nil {
				return nil, err
			}
			return workflow.Values{"announcements": outcomes}, nil
		},
	}
}
