package surface

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full string: "ns:action:payload".
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("surface: callback_data too long")

// Fits reports whether the full callback data string is within the
// platform limit. Callers fall back to a TokenStore token when it is not.
func Fits(data string) bool { return len(data) <= MaxCallbackDataLen }
