package environment_test

import (
	"testing"
	"time"

	"github.com/bdobrica/Anima/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if got := environment.StringOr("TEST_STRING", "default"); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := environment.StringOr("TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value")
	if v, err := environment.RequiredString("TEST_REQUIRED"); err != nil || v != "value" {
		t.Fatalf("RequiredString = %q, %v", v, err)
	}
	if _, err := environment.RequiredString("TEST_REQUIRED_MISSING"); err == nil {
		t.Error("expected error for missing variable, got nil")
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !environment.BoolOr("TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("TEST_BOOL", "nope")
	if !environment.BoolOr("TEST_BOOL", true) {
		t.Error("expected default on parse failure")
	}
}

func TestNumericHelpers(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{"int", "42", func(t *testing.T) {
			if got := environment.IntOr("TEST_NUM", 1); got != 42 {
				t.Errorf("IntOr = %d, want 42", got)
			}
		}},
		{"int invalid", "forty", func(t *testing.T) {
			if got := environment.IntOr("TEST_NUM", 1); got != 1 {
				t.Errorf("IntOr = %d, want default 1", got)
			}
		}},
		{"float", "0.42", func(t *testing.T) {
			if got := environment.Float64Or("TEST_NUM", 0.35); got != 0.42 {
				t.Errorf("Float64Or = %v, want 0.42", got)
			}
		}},
		{"float NaN", "NaN", func(t *testing.T) {
			if got := environment.Float64Or("TEST_NUM", 0.35); got != 0.35 {
				t.Errorf("Float64Or = %v, want default", got)
			}
		}},
		{"duration", "6h", func(t *testing.T) {
			if got := environment.DurationOr("TEST_NUM", time.Minute); got != 6*time.Hour {
				t.Errorf("DurationOr = %v, want 6h", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_NUM", tt.value)
			tt.check(t)
		})
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, ,b ,c")
	got := environment.StringSliceOr("TEST_SLICE", nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPrefix(t *testing.T) {
	env := environment.Prefix("ANIMA_TEST_")
	t.Setenv("ANIMA_TEST_TOP_K", "5")
	t.Setenv("ANIMA_TEST_EMPTY", "")

	if got := env.IntOr("TOP_K", 3); got != 5 {
		t.Errorf("IntOr = %d, want 5", got)
	}
	if !env.IsSet("EMPTY") {
		t.Error("IsSet(EMPTY) = false, want true")
	}
	if env.IsSet("MISSING") {
		t.Error("IsSet(MISSING) = true, want false")
	}
	if got := env.StringOr("EMPTY", "x"); got != "x" {
		t.Errorf("StringOr on empty = %q, want default", got)
	}
}
