package render

import (
	"strings"

	"annobot/internal/gateway"
	"annobot/pkg/surface"
)

// Callback namespace and actions for the preview controls. The payload is
// the bare draft id: it must fit the callback_data cap together with the
// prefix, so no JSON packing here.
const (
	CallbackNS    = "draft"
	ActionSend    = "send"
	ActionEdit    = "edit"
	ActionDiscard = "discard"
)

func channelList(channels []string) H {
	parts := make([]H, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, Code(ch))
	}
	return H(strings.Join(toStrings(parts), ", "))
}

func toStrings(hs []H) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.String()
	}
	return out
}

// DraftPreview renders the in-channel review message for an unsent draft,
// with its send/edit/discard controls. The draft content is framed between
// begin/end markers so reviewers can tell framing from payload.
func DraftPreview(draftID, createdBy, message string, channels []string) (string, [][]gateway.Button) {
	head := JoinLines(
		H("📝 ")+B("This announcement has NOT been sent"),
		B("Created by:")+" "+Esc(createdBy),
		B("Send to:")+" "+channelList(channels),
	)

	lines := []H{head, Code("Begin draft")}
	lines = append(lines, Classify(message).Lines()...)
	lines = append(lines, Code("End draft"))

	buttons := [][]gateway.Button{
		{{Text: "Send announcement", Data: surface.Data(CallbackNS, ActionSend, draftID)}},
		{
			{Text: "Edit the draft message", Data: surface.Data(CallbackNS, ActionEdit, draftID)},
			{Text: "Discard", Data: surface.Data(CallbackNS, ActionDiscard, draftID)},
		},
	}
	return JoinLines(lines...).String(), buttons
}

// SentPreview renders the review message after the announcement went out.
// It replaces the draft preview in place; no controls remain.
func SentPreview(createdBy, message string, channels []string) string {
	head := JoinLines(
		H("✅ ")+B("This announcement was sent"),
		B("Created by:")+" "+Esc(createdBy),
		B("Sent to:")+" "+channelList(channels),
	)

	lines := []H{head}
	lines = append(lines, Classify(message).Lines()...)
	return JoinLines(lines...).String()
}

// Announcement renders the message posted to each destination channel:
// just the content, no framing.
func Announcement(message string) string {
	return JoinLines(Classify(message).Lines()...).String()
}
