package gateway

import (
	"context"
	"errors"
)

// Channel and message identifiers are opaque strings throughout the core;
// only the platform adapter knows their shape.

// ErrGateway is the base error all adapter failures wrap. Core components
// classify any error matching it as a gateway fault.
var ErrGateway = errors.New("gateway error")

var (
	ErrNoPermalink = errors.New("gateway: no permalink for message")
)

// MessageRef identifies a posted message.
type MessageRef struct {
	Channel string
	TS      string
}

// Button is one interactive control attached to a message.
// Data carries "ns:action:payload" callback data (see pkg/surface).
type Button struct {
	Text string
	Data string
	URL  string
}

// SendOptions carries optional display overrides and controls.
type SendOptions struct {
	// Icon and Username override how the message presents itself,
	// where the platform supports it.
	Icon     string
	Username string

	// Buttons attaches rows of interactive controls.
	Buttons [][]Button

	// ThreadTS threads the message under an existing one.
	ThreadTS string

	// DisablePreview suppresses link unfurling.
	DisablePreview bool
}

// SurfaceKind distinguishes the two interactive surface shapes this bot opens.
type SurfaceKind string

const (
	SurfaceEdit    SurfaceKind = "edit"    // free-text input seeded with a value
	SurfaceConfirm SurfaceKind = "confirm" // yes/no style confirmation
)

// Surface describes a modal-style interactive view. Metadata is caller-
// defined and opaque: the adapter must hand it back unchanged on the
// matching Submission so resume handlers can recover correlation state.
type Surface struct {
	Kind       SurfaceKind
	CallbackID string // routes the submission back to its handler
	Title      string
	Body       []string // informational lines shown before any input
	Initial    string   // initial value of the editable field (edit only)
	Submit     string   // submit control label
	Close      string   // dismiss control label
	Metadata   string
}

// Pointer locates where (and for whom) a surface should open. It plays the
// role of an interactivity pointer: valid only in response to a user action.
type Pointer struct {
	Channel string
	UserID  string
}

// UpdateKind tags incoming gateway events.
type UpdateKind string

const (
	UpdateCallback   UpdateKind = "callback"   // button pressed on a message
	UpdateSubmission UpdateKind = "submission" // surface submitted
	UpdateCommand    UpdateKind = "command"    // plain text / command message
)

type Update struct {
	Kind       UpdateKind
	Callback   *Callback
	Submission *Submission
	Command    *Command
}

// Callback is a button press on a posted message. Data is the button's
// callback data verbatim.
type Callback struct {
	ID        string // platform ack handle
	Channel   string
	MessageTS string // message the button lives on
	UserID    string
	Data      string
}

// Submission is a completed interactive surface. Metadata round-trips
// unchanged from the Surface that opened it; Value is the submitted field
// content (empty for confirm surfaces).
type Submission struct {
	CallbackID string
	Metadata   string
	Value      string
	Channel    string
	UserID     string
}

// Command is a plain text message directed at the bot.
type Command struct {
	Channel string
	UserID  string
	Text    string
}

// Gateway is the messaging platform boundary. Every method is attempted
// exactly once; retry policy belongs to callers, and none of the core
// components retries.
type Gateway interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	PostMessage(ctx context.Context, channel, text string, opt *SendOptions) (MessageRef, error)
	UpdateMessage(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// Permalink resolves a stable link to a posted message.
	Permalink(ctx context.Context, ref MessageRef) (string, error)

	// OpenSurface shows an interactive view to the user behind ptr.
	OpenSurface(ctx context.Context, ptr Pointer, s Surface) error

	// AnswerCallback acknowledges a button press (dismisses the spinner).
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
