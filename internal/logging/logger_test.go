package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestEchoDisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	echo := NewEcho(&buf, false)
	echo.Print("save log content", map[string]any{"text": "hello"})
	if buf.Len() != 0 {
		t.Errorf("Expected no output, got %q", buf.String())
	}
	if echo.Enabled() {
		t.Error("disabled echo reports enabled")
	}
}

func TestEchoEnabled(t *testing.T) {
	var buf bytes.Buffer
	echo := NewEcho(&buf, true)
	echo.Print("save log content", map[string]any{"text": "hello"})
	out := buf.String()
	if !strings.Contains(out, "save log content") || !strings.Contains(out, "hello") {
		t.Errorf("Expected message and field in output, got %q", out)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.WarnLevel)
	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Error("warn message missing")
	}
}
