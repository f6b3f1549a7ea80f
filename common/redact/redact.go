// Package redact keeps private conversation text out of log output.
//
// Anima stores a person's diary-like conversations locally. Logs may be
// shipped off the machine by the operator, so log call-sites describe text by
// shape (length, rune count) rather than content unless content logging has
// been switched on explicitly.
package redact

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const placeholder = "[REDACTED]"

// Text returns a stand-in for s that reveals only its size, e.g.
// "[REDACTED 42B/40r]". Empty input stays empty.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("[REDACTED %dB/%dr]", len(s), utf8.RuneCountInString(s))
}

// Preview returns at most n runes of s followed by an ellipsis when s was
// cut. It is meant for debug logging with content logging enabled.
func Preview(s string, n int) string {
	if n <= 0 {
		return Text(s)
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "…"
		}
		i++
	}
	return s
}

// String replaces every occurrence of each value in s with [REDACTED].
// Values shorter than 4 bytes are skipped to avoid shredding common words.
func String(s string, values ...string) string {
	for _, v := range values {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Map returns a copy of m whose values are replaced by Text for every key in
// private. Keys are compared case-insensitively.
func Map(m map[string]string, private ...string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
		for _, p := range private {
			if strings.EqualFold(k, p) {
				out[k] = Text(v)
				break
			}
		}
	}
	return out
}
