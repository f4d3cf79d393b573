package render

import "encoding/json"

// Block is one unit of structured announcement content.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Content is the result of classifying a raw announcement message.
// Exactly one branch applies: Structured with decoded Blocks, or plain
// with the untouched Raw text.
type Content struct {
	Structured bool
	Blocks     []Block
	Raw        string
}

// Classify attempts a structured decode of the message as a JSON object
// carrying a "blocks" array. Any decode failure (malformed JSON, a
// non-object, a missing or empty blocks array) falls back to treating the
// entire input as literal text. Classification never errors and never
// partially decodes.
func Classify(message string) Content {
	var v struct {
		Blocks []Block `json:"blocks"`
	}
	if err := json.Unmarshal([]byte(message), &v); err == nil && len(v.Blocks) > 0 {
		return Content{Structured: true, Blocks: v.Blocks}
	}
	return Content{Raw: message}
}

// Lines renders the content body as safe HTML lines, one per block for
// structured content, or a single line for plain text.
func (c Content) Lines() []H {
	if !c.Structured {
		return []H{Esc(c.Raw)}
	}
	out := make([]H, 0, len(c.Blocks))
	for _, b := range c.Blocks {
		out = append(out, Esc(b.Text))
	}
	return out
}
