package sleep

import (
	"encoding/json"
	"strings"
)

// CleanJSON digs the JSON payload out of a model reply. It strips a
// ```json or bare ``` fence. A reply that is already valid JSON is returned
// trimmed; otherwise the balanced array or object that opens first is
// extracted. When nothing balances the trimmed reply is returned as is.
func CleanJSON(reply string) string {
	trimmed := strings.TrimSpace(reply)
	for _, fence := range []string{"```json", "```"} {
		if rest, ok := strings.CutPrefix(trimmed, fence); ok {
			if body, ok := strings.CutSuffix(strings.TrimSpace(rest), "```"); ok {
				return strings.TrimSpace(body)
			}
		}
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	pairs := [][2]byte{{'[', ']'}, {'{', '}'}}
	arr, obj := strings.IndexByte(trimmed, '['), strings.IndexByte(trimmed, '{')
	if obj >= 0 && (arr < 0 || obj < arr) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, p := range pairs {
		if s, ok := extractBalanced(trimmed, p[0], p[1]); ok {
			return s
		}
	}
	return trimmed
}

// extractBalanced returns the text from the first open up to its matching
// close, skipping brackets inside JSON strings.
func extractBalanced(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			if depth == 0 {
				return "", false
			}
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), true
			}
		}
	}
	return "", false
}
