package surface

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrBadMetadata is returned when interactive-surface metadata cannot be
// decoded on resume. Handlers treat it as a correlation failure: the
// interaction cannot be tied back to a draft.
var ErrBadMetadata = errors.New("surface: bad correlation metadata")

// Data formats callback data as "ns:action:payload".
// Payload is kept as-is (no escaping). If you pass structured payload,
// prefer PackJSON.
func Data(ns, action, payload string) string {
	ns = strings.TrimSpace(ns)
	action = strings.TrimSpace(action)
	if payload == "" {
		return ns + ":" + action
	}
	return ns + ":" + action + ":" + payload
}

// Split breaks "ns:action:payload" apart. The payload part may itself
// contain ':' only if it was base64url-packed, which never does.
func Split(data string) (ns, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	case 1:
		return parts[0], "", ""
	}
	return "", "", ""
}

// PackJSON marshals v to JSON then Base64URL encodes it (no padding),
// suitable for the payload part of "ns:action:payload".
func PackJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MustPackJSON is like PackJSON but returns empty string on error.
func MustPackJSON(v any) string {
	s, _ := PackJSON(v)
	return s
}

// UnpackJSON decodes base64url payload then unmarshals into v.
// Any decode failure maps to ErrBadMetadata so resume handlers can
// classify it uniformly.
func UnpackJSON(payload string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return errors.Join(ErrBadMetadata, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Join(ErrBadMetadata, err)
	}
	return nil
}
