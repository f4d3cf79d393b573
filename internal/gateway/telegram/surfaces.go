package telegram

import (
	"context"
	"encoding/json"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"annobot/internal/gateway"
	"annobot/internal/render"
	"annobot/pkg/logx"
	"annobot/pkg/surface"
)

// Telegram has no modal views, so surfaces are emulated with prompt
// messages. Confirm surfaces become a message with submit/close buttons;
// edit surfaces become a force-reply prompt whose reply carries the new
// value. Surface metadata never fits callback_data, so it is parked in the
// token store and only a short token travels over the wire. The metadata
// still round-trips unchanged to the submission, which is all callers rely
// on.
const (
	surfaceNS     = "surface"
	actionSubmit  = "submit"
	actionDismiss = "close"
)

type surfaceState struct {
	CallbackID string `json:"callback_id"`
	Metadata   string `json:"metadata"`
}

func (a *Adapter) OpenSurface(ctx context.Context, ptr gateway.Pointer, s gateway.Surface) error {
	switch s.Kind {
	case gateway.SurfaceConfirm:
		return a.openConfirm(ctx, ptr, s)
	case gateway.SurfaceEdit:
		return a.openEdit(ctx, ptr, s)
	default:
		return wrapGW(errNoSurfaceKind(s.Kind))
	}
}

type errNoSurfaceKind gateway.SurfaceKind

func (e errNoSurfaceKind) Error() string { return "unknown surface kind " + string(e) }

func (a *Adapter) openConfirm(_ context.Context, ptr gateway.Pointer, s gateway.Surface) error {
	chatID, err := parseChannel(ptr.Channel)
	if err != nil {
		return wrapGW(err)
	}
	tok, err := a.tokens.PutJSON(surfaceState{CallbackID: s.CallbackID, Metadata: s.Metadata})
	if err != nil {
		return wrapGW(err)
	}

	lines := []render.H{render.B(s.Title)}
	for _, b := range s.Body {
		lines = append(lines, render.Esc(b))
	}
	markup := buildMarkup([][]gateway.Button{{
		{Text: s.Submit, Data: surface.Data(surfaceNS, actionSubmit, tok)},
		{Text: s.Close, Data: surface.Data(surfaceNS, actionDismiss, tok)},
	}})

	opt := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: markup}
	if _, err := a.bot.Send(&tele.Chat{ID: chatID}, render.JoinLines(lines...).String(), opt); err != nil {
		return wrapGW(err)
	}
	return nil
}

func (a *Adapter) openEdit(_ context.Context, ptr gateway.Pointer, s gateway.Surface) error {
	chatID, err := parseChannel(ptr.Channel)
	if err != nil {
		return wrapGW(err)
	}

	lines := []render.H{render.B(s.Title)}
	for _, b := range s.Body {
		lines = append(lines, render.Esc(b))
	}
	lines = append(lines,
		render.I("Current message:"),
		render.Code(s.Initial),
		render.I("Reply to this message with the new text."))

	opt := &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: &tele.ReplyMarkup{ForceReply: true},
	}
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, render.JoinLines(lines...).String(), opt)
	if err != nil {
		return wrapGW(err)
	}

	state, err := json.Marshal(surfaceState{CallbackID: s.CallbackID, Metadata: s.Metadata})
	if err != nil {
		return wrapGW(err)
	}
	a.tokens.PutKeyed(promptKey(chatID, msg.ID), state)
	return nil
}

// promptReply resolves a text message that replies to an edit prompt into
// the corresponding surface submission.
func (a *Adapter) promptReply(m *tele.Message) (gateway.Update, bool) {
	if m.ReplyTo == nil {
		return gateway.Update{}, false
	}
	key := promptKey(m.Chat.ID, m.ReplyTo.ID)
	raw, ok := a.tokens.Get(key)
	if !ok {
		return gateway.Update{}, false
	}
	a.tokens.Delete(key)

	var st surfaceState
	if err := json.Unmarshal(raw, &st); err != nil {
		a.log.Error("bad surface state", logx.Err(err))
		return gateway.Update{}, false
	}

	// The prompt served its purpose.
	if err := a.bot.Delete(m.ReplyTo); err != nil {
		a.log.Debug("delete edit prompt", logx.Err(err))
	}

	return gateway.Update{
		Kind: gateway.UpdateSubmission,
		Submission: &gateway.Submission{
			CallbackID: st.CallbackID,
			Metadata:   st.Metadata,
			Value:      m.Text,
			Channel:    strconv.FormatInt(m.Chat.ID, 10),
			UserID:     strconv.FormatInt(m.Sender.ID, 10),
		},
	}, true
}

func (a *Adapter) handleSurfaceCallback(cb *tele.Callback, m *tele.Message, data string) {
	_, action, tok := surface.Split(data)
	raw, ok := a.tokens.Get(tok)
	a.tokens.Delete(tok)

	_ = a.bot.Respond(cb, &tele.CallbackResponse{})
	if err := a.bot.Delete(m); err != nil {
		a.log.Debug("delete confirm prompt", logx.Err(err))
	}

	if action != actionSubmit || !ok {
		return
	}
	var st surfaceState
	if err := json.Unmarshal(raw, &st); err != nil {
		a.log.Error("bad surface state", logx.Err(err))
		return
	}
	a.emit(gateway.Update{
		Kind: gateway.UpdateSubmission,
		Submission: &gateway.Submission{
			CallbackID: st.CallbackID,
			Metadata:   st.Metadata,
			Channel:    strconv.FormatInt(m.Chat.ID, 10),
			UserID:     strconv.FormatInt(cb.Sender.ID, 10),
		},
	})
}

func promptKey(chatID int64, msgID int) string {
	return "prompt:" + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(msgID)
}
