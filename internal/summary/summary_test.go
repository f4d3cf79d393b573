package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"annobot/internal/dispatch"
	"annobot/internal/gateway"
	"annobot/internal/workflow"
	"annobot/pkg/logx"
)

type fakePoster struct {
	gateway.Gateway

	fail    bool
	channel string
	text    string
	opt     *gateway.SendOptions
}

func (f *fakePoster) PostMessage(_ context.Context, channel, text string, opt *gateway.SendOptions) (gateway.MessageRef, error) {
	if f.fail {
		return gateway.MessageRef{}, errors.New("post refused")
	}
	f.channel, f.text, f.opt = channel, text, opt
	return gateway.MessageRef{Channel: channel, TS: "77"}, nil
}

func outcomes(n int) []dispatch.Outcome {
	out := make([]dispatch.Outcome, n)
	for i := range out {
		out[i] = dispatch.Outcome{
			Channel:   fmt.Sprintf("ch-%d", i),
			Success:   i%2 == 0,
			Permalink: fmt.Sprintf("https://example.test/ch-%d/1", i),
			Error:     "boom",
		}
	}
	return out
}

func TestRenderWithinBudget(t *testing.T) {
	t.Parallel()
	p := New(&fakePoster{}, logx.Nop(), 10)

	lines := p.Render(outcomes(9))
	if len(lines) != 9 {
		t.Fatalf("got %d lines, want 9", len(lines))
	}
	for i, l := range lines {
		if !strings.Contains(l, fmt.Sprintf("ch-%d", i)) {
			t.Errorf("line %d does not reference its channel: %q", i, l)
		}
		if strings.Contains(l, truncationNotice) {
			t.Errorf("unexpected truncation notice in line %d", i)
		}
	}
}

func TestRenderTruncates(t *testing.T) {
	t.Parallel()
	p := New(&fakePoster{}, logx.Nop(), 10)

	for _, n := range []int{10, 11, 50} {
		lines := p.Render(outcomes(n))
		if len(lines) != 10 {
			t.Fatalf("n=%d: got %d lines, want exactly the budget", n, len(lines))
		}
		if lines[9] != truncationNotice {
			t.Errorf("n=%d: last line %q, want notice", n, lines[9])
		}
		for i := 0; i < 9; i++ {
			if !strings.Contains(lines[i], fmt.Sprintf("ch-%d", i)) {
				t.Errorf("n=%d: line %d does not map to outcome %d: %q", n, i, i, lines[i])
			}
		}
	}
}

func TestRenderLineShape(t *testing.T) {
	t.Parallel()
	p := New(&fakePoster{}, logx.Nop(), 0)

	lines := p.Render([]dispatch.Outcome{
		{Channel: "100", Success: true, Permalink: "https://example.test/100/1"},
		{Channel: "200", Success: false, Error: "blocked by peer"},
	})
	if !strings.HasPrefix(lines[0], "✅") || !strings.Contains(lines[0], `href="https://example.test/100/1"`) {
		t.Errorf("success line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "⛔") || !strings.Contains(lines[1], "blocked by peer") {
		t.Errorf("failure line: %q", lines[1])
	}
}

func TestPostThreadsUnderPreview(t *testing.T) {
	t.Parallel()
	gw := &fakePoster{}
	p := New(gw, logx.Nop(), 0)

	ref, err := p.Post(context.Background(), outcomes(2), "900", "42")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ref.TS == "" {
		t.Error("empty message ref")
	}
	if gw.channel != "900" {
		t.Errorf("posted to %q, want 900", gw.channel)
	}
	if gw.opt == nil || gw.opt.ThreadTS != "42" || !gw.opt.DisablePreview {
		t.Errorf("send options: %+v", gw.opt)
	}
	if got := strings.Count(gw.text, "\n"); got != 1 {
		t.Errorf("posted %d newlines for 2 outcomes", got)
	}
}

func TestPostAppliesLineBudget(t *testing.T) {
	t.Parallel()
	gw := &fakePoster{}
	p := New(gw, logx.Nop(), 5)

	if _, err := p.Post(context.Background(), outcomes(12), "900", ""); err != nil {
		t.Fatalf("Post: %v", err)
	}
	lines := strings.Split(gw.text, "\n")
	if len(lines) != 5 {
		t.Fatalf("posted %d lines, want the budget", len(lines))
	}
	if lines[4] != truncationNotice {
		t.Errorf("last posted line %q, want notice", lines[4])
	}
}

func TestPostFailureIsTerminal(t *testing.T) {
	t.Parallel()
	p := New(&fakePoster{fail: true}, logx.Nop(), 0)

	_, err := p.Post(context.Background(), outcomes(1), "900", "")
	if !errors.Is(err, workflow.ErrGatewayOp) {
		t.Fatalf("want gateway taxonomy error, got %v", err)
	}
}

func TestStageThreadsValues(t *testing.T) {
	t.Parallel()
	gw := &fakePoster{}
	p := New(gw, logx.Nop(), 0)

	out, err := p.Stage().Run(context.Background(), workflow.Values{
		"announcements": outcomes(3),
		"channel":       "900",
		"message_ts":    "42",
	})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if out.String("summary_channel") != "900" || out.String("summary_message_ts") != "77" {
		t.Errorf("stage outputs: %v", out)
	}
}
