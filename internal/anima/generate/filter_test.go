package generate

import "testing"

func TestStopIndex(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"no markers", -1},
		{"hi\nUser: x", 2},
		{"a<|eot_id|>b\nAlex:", 1},
		{"User: at start is not a turn", -1},
	}
	for _, tt := range tests {
		if got := stopIndex(tt.in); got != tt.want {
			t.Errorf("stopIndex(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLeakIndex(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"fine [1] text", -1},
		{"ok [system NOTE: be nice] rest", 3},
		{"x [Remember your\ncritical instruction]", 2},
		{"[CRITICAL INSTRUCTION", -1},
	}
	for _, tt := range tests {
		if got := leakIndex(tt.in); got != tt.want {
			t.Errorf("leakIndex(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	in := `a [System note: hidden] b\r\nc\td`
	if got := Sanitize(in); got != "a  b\nc\td" {
		t.Errorf("Sanitize = %q", got)
	}
}

func TestSafeEmitEnd(t *testing.T) {
	tests := []struct {
		name      string
		generated string
		emitted   int
		want      int
	}{
		{"short", "Hello", 0, 0},
		{"withhold tail", "Hello there, friend", 0, len("Hello there, friend") - (maxStopLen - 1)},
		{"open bracket", "A [maybe this is a long tail", 0, 2},
		{"tail before bracket", "A long enough sentence [maybe", 0, len("A long enough sentence [maybe") - (maxStopLen - 1)},
		{"closed bracket", "A long [fine] sentence, then more", 0, len("A long [fine] sentence, then more") - (maxStopLen - 1)},
		{"rune boundary", "aaaaaaaaaaaaé12345678", 0, 12},
		{"split escape", `Line one\n12345678`, 0, len("Line one")},
		{"split crlf escape", `Line one\r\n1234567`, 0, len("Line one")},
		{"escape at emitted", `Line one\n12345678`, 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := safeEmitEnd(tt.generated, tt.emitted); got != tt.want {
				t.Errorf("safeEmitEnd = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMaxStopLen(t *testing.T) {
	if maxStopLen != len("<|eot_id|>") {
		t.Errorf("maxStopLen = %d", maxStopLen)
	}
}
