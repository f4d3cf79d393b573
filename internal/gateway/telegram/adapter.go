// Package telegram adapts the messaging gateway contract to the Telegram
// Bot API via telebot. Channels are chat ids rendered as decimal strings
// and message timestamps are message ids, both opaque to the core.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"annobot/internal/gateway"
	"annobot/pkg/logx"
	"annobot/pkg/surface"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	tokens    *surface.TokenStore
	out       chan<- gateway.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b, tokens: surface.NewTokenStore()}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- gateway.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		if up, ok := a.promptReply(m); ok {
			a.emit(up)
			return nil
		}
		a.emit(gateway.Update{
			Kind: gateway.UpdateCommand,
			Command: &gateway.Command{
				Channel: strconv.FormatInt(m.Chat.ID, 10),
				UserID:  strconv.FormatInt(m.Sender.ID, 10),
				Text:    m.Text,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		data := strings.TrimSpace(cb.Data)
		if ns, _, _ := surface.Split(data); ns == surfaceNS {
			a.handleSurfaceCallback(cb, m, data)
			return nil
		}
		a.emit(gateway.Update{
			Kind: gateway.UpdateCallback,
			Callback: &gateway.Callback{
				ID:        cb.ID,
				Channel:   strconv.FormatInt(m.Chat.ID, 10),
				MessageTS: strconv.Itoa(m.ID),
				UserID:    strconv.FormatInt(cb.Sender.ID, 10),
				Data:      data,
			},
		})
		return nil
	})

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start()
	}()

	return nil
}

func (a *Adapter) emit(up gateway.Update) {
	select {
	case a.out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	go a.bot.Stop()

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Keep shutdown snappy even if the long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("stop grace elapsed, continuing shutdown")
		return nil
	}
}

func (a *Adapter) PostMessage(_ context.Context, channel, text string, opt *gateway.SendOptions) (gateway.MessageRef, error) {
	chatID, err := parseChannel(channel)
	if err != nil {
		return gateway.MessageRef{}, wrapGW(err)
	}
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, text, sendOptions(opt))
	if err != nil {
		return gateway.MessageRef{}, wrapGW(err)
	}
	return gateway.MessageRef{Channel: channel, TS: strconv.Itoa(msg.ID)}, nil
}

func (a *Adapter) UpdateMessage(_ context.Context, ref gateway.MessageRef, text string, opt *gateway.SendOptions) error {
	chatID, err := parseChannel(ref.Channel)
	if err != nil {
		return wrapGW(err)
	}
	stored := &tele.StoredMessage{MessageID: ref.TS, ChatID: chatID}
	if _, err := a.bot.Edit(stored, text, sendOptions(opt)); err != nil {
		return wrapGW(err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(_ context.Context, ref gateway.MessageRef) error {
	chatID, err := parseChannel(ref.Channel)
	if err != nil {
		return wrapGW(err)
	}
	if err := a.bot.Delete(&tele.StoredMessage{MessageID: ref.TS, ChatID: chatID}); err != nil {
		return wrapGW(err)
	}
	return nil
}

// Permalink synthesizes the t.me deep link for supergroup and channel
// messages. Private and basic-group chats have no public link.
func (a *Adapter) Permalink(_ context.Context, ref gateway.MessageRef) (string, error) {
	chatID, err := parseChannel(ref.Channel)
	if err != nil {
		return "", wrapGW(err)
	}
	return permalink(chatID, ref.TS)
}

func (a *Adapter) AnswerCallback(_ context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func parseChannel(channel string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(channel), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad channel id %q: %w", channel, err)
	}
	return id, nil
}

// supergroupBase is the offset Telegram applies to supergroup and channel
// chat ids (-100 prefix in decimal).
const supergroupBase = -1_000_000_000_000

func permalink(chatID int64, ts string) (string, error) {
	if chatID >= supergroupBase {
		return "", gateway.ErrNoPermalink
	}
	internal := supergroupBase - chatID
	return fmt.Sprintf("https://t.me/c/%d/%s", internal, ts), nil
}

func sendOptions(opt *gateway.SendOptions) *tele.SendOptions {
	out := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if opt == nil {
		return out
	}
	out.DisableWebPagePreview = opt.DisablePreview
	if opt.ThreadTS != "" {
		if id, err := strconv.Atoi(opt.ThreadTS); err == nil {
			out.ReplyTo = &tele.Message{ID: id}
		}
	}
	if len(opt.Buttons) > 0 {
		out.ReplyMarkup = buildMarkup(opt.Buttons)
	}
	// Icon and username overrides have no Telegram equivalent; the bot
	// always posts under its own identity.
	return out
}

func buildMarkup(rows [][]gateway.Button) *tele.ReplyMarkup {
	keyboard := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		keyboard = append(keyboard, btns)
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

func wrapGW(err error) error {
	return fmt.Errorf("%w: %w", gateway.ErrGateway, err)
}
