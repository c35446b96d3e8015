package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON isolates the JSON document in a model reply. Models wrap JSON
// in prose or markdown fences; the span from the first opening bracket to
// the matching last closing bracket is returned. Objects and arrays are both
// accepted, whichever opens first.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty model output")
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	open, closer := "{", "}"
	start := objStart
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		open, closer = "[", "]"
		start = arrStart
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON document in model output")
	}

	end := strings.LastIndex(text, closer)
	if end < start {
		return "", fmt.Errorf("unterminated JSON %s in model output", open)
	}
	return text[start : end+1], nil
}

// DecodeJSON extracts and unmarshals the JSON document in a model reply.
func DecodeJSON[T any](text string) (T, error) {
	var out T
	raw, err := ExtractJSON(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}
