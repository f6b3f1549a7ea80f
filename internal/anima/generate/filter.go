package generate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// StopSequences end a reply as soon as they appear: the model has started
// writing another speaker's turn or an end-of-turn marker.
var StopSequences = []string{"\nAlex:", "\nUser:", "<|im_end|>", "<|eot_id|>"}

var maxStopLen = func() int {
	n := 0
	for _, s := range StopSequences {
		n = max(n, len(s))
	}
	return n
}()

// leakPattern matches a bracketed echo of the system instructions.
var leakPattern = regexp.MustCompile(`(?is)\[[^\]]*(?:System\s+note:|Remember\s+your\s+CRITICAL\s+INSTRUCTION|CRITICAL\s+INSTRUCTION)\s*[^\]]*\]`)

var escapeReplacer = strings.NewReplacer(`\r\n`, "\n", `\n`, "\n", `\t`, "\t")

func isStopSequence(s string) bool {
	for _, stop := range StopSequences {
		if s == stop {
			return true
		}
	}
	return false
}

// stopIndex returns the byte offset of the earliest stop sequence in s, or
// -1.
func stopIndex(s string) int {
	best := -1
	for _, stop := range StopSequences {
		if i := strings.Index(s, stop); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// leakIndex returns the byte offset of the first leaked instruction block in
// s, or -1.
func leakIndex(s string) int {
	if loc := leakPattern.FindStringIndex(s); loc != nil {
		return loc[0]
	}
	return -1
}

// Sanitize removes leaked instruction blocks and turns literal escape
// sequences the model sometimes writes into the characters they stand for.
func Sanitize(s string) string {
	return escapeReplacer.Replace(leakPattern.ReplaceAllString(s, ""))
}

// floorRuneBoundary moves i back to the start of the rune it falls in.
func floorRuneBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	if i <= 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// safeEmitEnd returns how much of generated can be emitted without risking
// part of a stop sequence or an unfinished instruction block reaching the
// caller. Nothing before emitted is reconsidered.
func safeEmitEnd(generated string, emitted int) int {
	end := len(generated) - (maxStopLen - 1)

	// An open bracket may still turn into a leak.
	lastClose := strings.LastIndexByte(generated, ']')
	from := max(emitted, lastClose+1)
	if from < len(generated) {
		if i := strings.IndexByte(generated[from:], '['); i >= 0 {
			end = min(end, from+i)
		}
	}
	return holdEscape(generated, floorRuneBoundary(generated, end), emitted)
}

// holdEscape moves end back before a trailing backslash or a literal `\r`,
// so an escape sequence split across two chunks is sanitized as a whole.
func holdEscape(generated string, end, emitted int) int {
	for end > emitted {
		switch {
		case generated[end-1] == '\\':
			end--
		case end-emitted >= 2 && generated[end-2:end] == `\r`:
			end -= 2
		default:
			return end
		}
	}
	return end
}
