// Package surface carries opaque correlation metadata across interactive
// round trips.
//
// An interactive surface (a preview keyboard, an edit prompt, a confirm
// dialog) is shown in one invocation and answered in another; the only
// state shared between the two is the metadata packed here. Small payloads
// ride inside callback data ("ns:action:payload" with a base64url JSON
// payload); anything over the platform's callback_data cap is parked in a
// TokenStore and referenced by token.
package surface
