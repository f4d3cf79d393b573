package render

import "annobot/internal/gateway"

// Surface callback ids, matched by the submission router.
const (
	EditSurfaceID    = "edit_message"
	ConfirmSurfaceID = "confirm_send"
)

// EditSurface builds the draft-editing surface seeded with the current
// message. Whether the message classifies as structured or plain, at least
// one informational line precedes the editable field; the help text differs
// per branch so editors of structured content know to paste a whole
// replacement payload.
func EditSurface(message, metadata string) gateway.Surface {
	var help string
	if Classify(message).Structured {
		help = "This draft is structured content. Replace the entire payload below; partial edits of the JSON will fall back to plain text."
	} else {
		help = "Pro tip: paste a JSON payload of the form {\"blocks\": [...]} to send a formatted announcement."
	}

	return gateway.Surface{
		Kind:       gateway.SurfaceEdit,
		CallbackID: EditSurfaceID,
		Title:      "Edit the draft message",
		Body:       []string{help},
		Initial:    message,
		Submit:     "Save",
		Close:      "Cancel",
		Metadata:   metadata,
	}
}

// ConfirmSurface builds the send-confirmation surface listing the
// destination channels.
func ConfirmSurface(channels []string, metadata string) gateway.Surface {
	return gateway.Surface{
		Kind:       gateway.SurfaceConfirm,
		CallbackID: ConfirmSurfaceID,
		Title:      "Send your announcement",
		Body: []string{
			"Are you sure you want to send this announcement? This cannot be undone!",
			"The announcement will be posted to: " + channelList(channels).String(),
		},
		Submit:   "Send it",
		Close:    "Keep editing",
		Metadata: metadata,
	}
}
