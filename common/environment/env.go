// Package environment reads configuration from environment variables.
//
// Every helper returns the parsed value or a caller-supplied default; unset,
// empty and unparsable variables all fall back to the default. Required
// variables return an error instead of exiting so callers decide how to fail.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StringOr returns the value of the named variable, or defaultValue if it is
// unset or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the value of the named variable or an error if it is
// unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named variable with strconv.ParseBool.
func BoolOr(name string, defaultValue bool) bool {
	return parseOr(name, defaultValue, strconv.ParseBool)
}

// IntOr parses the named variable as a decimal integer.
func IntOr(name string, defaultValue int) int {
	return parseOr(name, defaultValue, strconv.Atoi)
}

// Float64Or parses the named variable as a float. NaN and infinities are
// rejected.
func Float64Or(name string, defaultValue float64) float64 {
	return parseOr(name, defaultValue, func(s string) (float64, error) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if f != f || f > 1e308 || f < -1e308 {
			return 0, fmt.Errorf("not finite: %q", s)
		}
		return f, nil
	})
}

// DurationOr parses the named variable as a time.Duration ("30s", "6h").
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	return parseOr(name, defaultValue, time.ParseDuration)
}

// StringSliceOr splits the named variable on commas, trimming each element
// and dropping empty ones.
func StringSliceOr(name string, defaultValue []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	var result []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func parseOr[T any](name string, defaultValue T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Prefix scopes lookups to variables sharing a common prefix, e.g.
// Prefix("ANIMA_").StringOr("DB_PATH", ...) reads ANIMA_DB_PATH.
type Prefix string

func (p Prefix) StringOr(name, defaultValue string) string {
	return StringOr(string(p)+name, defaultValue)
}

func (p Prefix) BoolOr(name string, defaultValue bool) bool {
	return BoolOr(string(p)+name, defaultValue)
}

func (p Prefix) IntOr(name string, defaultValue int) int {
	return IntOr(string(p)+name, defaultValue)
}

func (p Prefix) Float64Or(name string, defaultValue float64) float64 {
	return Float64Or(string(p)+name, defaultValue)
}

func (p Prefix) DurationOr(name string, defaultValue time.Duration) time.Duration {
	return DurationOr(string(p)+name, defaultValue)
}

// IsSet reports whether the prefixed variable is present, even if empty.
func (p Prefix) IsSet(name string) bool {
	_, ok := os.LookupEnv(string(p) + name)
	return ok
}
