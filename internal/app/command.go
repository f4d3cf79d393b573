package app

import (
	"errors"
	"fmt"
	"strings"
)

// errNotAnnounce marks text that is not an /announce invocation at all, as
// opposed to a malformed one.
var errNotAnnounce = errors.New("not an announce command")

// ParseAnnounce parses "/announce <ch1,ch2,...> <message>". The message
// keeps its internal whitespace; channels are trimmed and empties dropped.
func ParseAnnounce(text string) (channels []string, message string, err error) {
	text = strings.TrimSpace(text)
	cmd, rest, _ := strings.Cut(text, " ")
	// Allow the @botname suffix Telegram appends in groups.
	if base, _, _ := strings.Cut(cmd, "@"); base != "/announce" {
		return nil, "", errNotAnnounce
	}

	chanArg, message, ok := strings.Cut(strings.TrimSpace(rest), " ")
	if !ok || strings.TrimSpace(message) == "" {
		return nil, "", fmt.Errorf("announce: missing channels or message")
	}

	for _, ch := range strings.Split(chanArg, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return nil, "", fmt.Errorf("announce: no destination channels")
	}
	return channels, strings.TrimSpace(message), nil
}
