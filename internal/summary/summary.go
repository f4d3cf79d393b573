package summary

import (
	"context"
	"fmt"
	"strings"

	"annobot/internal/dispatch"
	"annobot/internal/gateway"
	"annobot/internal/render"
	"annobot/internal/workflow"
	"annobot/pkg/logx"
)

// DefaultLineBudget caps how many lines a summary message may carry. When
// the per-channel results exceed it, the last line becomes a truncation
// notice instead of an outcome.
const DefaultLineBudget = 48

const truncationNotice = "... and more"

// Poster writes the post-dispatch report into the review conversation,
// threaded under the draft preview when a thread anchor is given.
type Poster struct {
	gw     gateway.Gateway
	log    logx.Logger
	budget int
}

func New(gw gateway.Gateway, log logx.Logger, lineBudget int) *Poster {
	if lineBudget <= 0 {
		lineBudget = DefaultLineBudget
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poster{gw: gw, log: log, budget: lineBudget}
}

// Render maps each outcome to one report line, in outcome order. With M
// outcomes and budget N: M < N keeps every line; otherwise the first N-1
// outcomes keep their lines and the Nth line is the truncation notice.
func (p *Poster) Render(outcomes []dispatch.Outcome) []string {
	lines := make([]string, 0, min(len(outcomes)+1, p.budget))
	for _, o := range outcomes {
		if len(lines) == p.budget-1 && len(outcomes) > p.budget-1 {
			lines = append(lines, truncationNotice)
			break
		}
		lines = append(lines, outcomeLine(o))
	}
	return lines
}

func outcomeLine(o dispatch.Outcome) string {
	if o.Success {
		return fmt.Sprintf("✅ %s sent to %s",
			render.Link("Announcement", o.Permalink), render.Code(o.Channel))
	}
	return fmt.Sprintf("⛔ %s error sending to %s",
		render.Code(o.Error), render.Code(o.Channel))
}

// Post renders the outcomes and posts them as a single message. A post
// failure is terminal for the run; the summary is the last step and has
// nothing to fall back to.
func (p *Poster) Post(ctx context.Context, outcomes []dispatch.Outcome, channel, threadTS string) (gateway.MessageRef, error) {
	lines := p.Render(outcomes)
	text := strings.Join(lines, "\n")
	ref, err := p.gw.PostMessage(ctx, channel, text, &gateway.SendOptions{
		ThreadTS:       threadTS,
		DisablePreview: true,
	})
	if err != nil {
		return gateway.MessageRef{}, workflow.GatewayOp("post summary", err)
	}
	p.log.Info("summary posted",
		logx.String("channel", channel),
		logx.Int("outcomes", len(outcomes)),
		logx.Int("lines", len(lines)))
	return ref, nil
}

// Stage adapts the poster to the announcement workflow: inputs
// (announcements, channel, message_ts), outputs the summary's own
// (channel, message_ts).
func (p *Poster) Stage() workflow.Stage {
	return workflow.Stage{
		Name: "post_summary",
		Run: func(ctx context.Context, in workflow.Values) (workflow.Values, error) {
			outcomes, _ := in["announcements"].([]dispatch.Outcome)
			ref, err := p.Post(ctx, outcomes, in.String("channel"), in.String("message_ts"))
			if err != nil {
				return nil, err
			}
			return workflow.Values{
				"summary_channel":    ref.Channel,
				"summary_message_ts": ref.TS,
			}, nil
		},
	}
}
