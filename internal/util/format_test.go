package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{"nanoseconds", 420 * time.Nanosecond, "420ns"},
		{"microseconds", 1500 * time.Nanosecond, "1.5µs"},
		{"milliseconds", 2500 * time.Microsecond, "2.5ms"},
		{"seconds", 1500 * time.Millisecond, "1.500s"},
		{"minutes", 2*time.Minute + 5*time.Second, "2m 5s"},
		{"hours", 3*time.Hour + 4*time.Minute + 5*time.Second, "3h 4m 5s"},
		{"negative", -2 * time.Millisecond, "-2.0ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.d))
		})
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "Traces [3]", FormatCount("Traces", 3))
	assert.Equal(t, "exp [0]", FormatCount("exp", 0))
}

func TestTruncateToWidth(t *testing.T) {
	assert.Equal(t, "short", TruncateToWidth("short", 10))
	assert.Equal(t, "", TruncateToWidth("anything", 0))
	truncated := TruncateToWidth("a-very-long-analysis-name", 8)
	assert.LessOrEqual(t, GetDisplayWidth(truncated), 8)
	assert.Equal(t, 10, GetDisplayWidth(PadToWidth("abc", 10)))
}
