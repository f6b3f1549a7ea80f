package redact_test

import (
	"strings"
	"testing"

	"github.com/bdobrica/Anima/common/redact"
)

func TestText(t *testing.T) {
	if got := redact.Text(""); got != "" {
		t.Errorf("Text(\"\") = %q, want empty", got)
	}
	got := redact.Text("mañana")
	if got != "[REDACTED 7B/6r]" {
		t.Errorf("Text = %q", got)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello…"},
		{"ñandú feliz", 5, "ñandú…"},
	}
	for _, tt := range tests {
		if got := redact.Preview(tt.in, tt.n); got != tt.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
	if got := redact.Preview("secret", 0); !strings.HasPrefix(got, "[REDACTED") {
		t.Errorf("Preview with n=0 should redact, got %q", got)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	line := "Ana likes tea"
	if got := redact.String(line, "Ana"); got != line {
		t.Fatalf("short value should not be redacted; got %q", got)
	}
	if got := redact.String(line, "likes tea"); got != "Ana [REDACTED]" {
		t.Fatalf("got %q", got)
	}
}

func TestMap(t *testing.T) {
	in := map[string]string{"core_prompt": "be gentle", "app_language": "EN"}
	out := redact.Map(in, "CORE_PROMPT")
	if out["app_language"] != "EN" {
		t.Errorf("app_language changed: %q", out["app_language"])
	}
	if out["core_prompt"] == "be gentle" {
		t.Error("core_prompt was not redacted")
	}
	if in["core_prompt"] != "be gentle" {
		t.Error("input map was mutated")
	}
}
