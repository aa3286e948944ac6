package logx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLogFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("dispatch", &buf)
	logger.Info("Test message with %s", "formatting")

	output := buf.String()

	if !strings.Contains(output, "[dispatch]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	SetDebug(true)
	defer SetDebug(false)

	tests := []struct {
		level    Level
		logFunc  func(*Logger) func(string, ...any)
		expected string
	}{
		{LevelDebug, func(l *Logger) func(string, ...any) { return l.Debug }, "DEBUG"},
		{LevelInfo, func(l *Logger) func(string, ...any) { return l.Info }, "INFO"},
		{LevelWarn, func(l *Logger) func(string, ...any) { return l.Warn }, "WARN"},
		{LevelError, func(l *Logger) func(string, ...any) { return l.Error }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(NewLoggerWithWriter("test", &buf))("test message")

			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("Expected level '%s' in output, got: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestDebugSuppressedWhenDisabled(t *testing.T) {
	SetDebug(false)

	var buf bytes.Buffer
	NewLoggerWithWriter("test", &buf).Debug("hidden")

	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	SetDebug(true)
	SetDebugDomains([]string{"dispatch"})
	defer func() {
		SetDebug(false)
		SetDebugDomains(nil)
	}()

	if !IsDebugEnabledForDomain("dispatch") {
		t.Error("Expected dispatch domain to be enabled")
	}
	if IsDebugEnabledForDomain("rest") {
		t.Error("Expected rest domain to be disabled")
	}

	var buf bytes.Buffer
	logger := NewLoggerWithWriter("test", &buf)
	logger.DebugDomain("rest", "filtered")
	logger.DebugDomain("dispatch", "routed %s", "create_memory")

	output := buf.String()
	if strings.Contains(output, "filtered") {
		t.Errorf("Expected rest domain line to be filtered, got: %s", output)
	}
	if !strings.Contains(output, "[dispatch] routed create_memory") {
		t.Errorf("Expected dispatch domain line, got: %s", output)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	original := NewLoggerWithWriter("original", &buf)
	renamed := original.WithComponent("renamed")

	if renamed.Component() != "renamed" {
		t.Errorf("Expected component 'renamed', got '%s'", renamed.Component())
	}
	if original.Component() != "original" {
		t.Errorf("Expected original component unchanged, got '%s'", original.Component())
	}

	renamed.Info("shared writer")
	if !strings.Contains(buf.String(), "[renamed]") {
		t.Errorf("Expected renamed logger to share writer, got: %s", buf.String())
	}

	ctx := WithComponent(context.Background(), "cli")
	if got := ctx.Value(componentKey{}); got != "cli" {
		t.Errorf("Expected context component 'cli', got %v", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "noop") != nil {
		t.Error("Expected nil for nil error")
	}

	base := errors.New("boom")
	err := Wrap(base, "open journal")
	if !errors.Is(err, base) {
		t.Error("Expected wrapped error to unwrap to base")
	}
	if err.Error() != "open journal: boom" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
