package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type captureOutput struct {
	buf bytes.Buffer
}

func (c *captureOutput) Write(_ *Entry, formatted []byte) error {
	c.buf.Write(formatted)
	return nil
}

func (c *captureOutput) Close() error { return nil }

func TestLoggerWritesFields(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&JSONFormatter{}), WithOutput(out))
	l.Info("event stored", Str("tenant", "default"), Int("levId", 7))
	if !strings.Contains(out.buf.String(), `"tenant":"default"`) {
		t.Fatalf("expected tenant field in output, got %s", out.buf.String())
	}
	if !strings.Contains(out.buf.String(), `"levId":7`) {
		t.Fatalf("expected levId field in output, got %s", out.buf.String())
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(WarnLevel), WithFormatter(&TextFormatter{}), WithOutput(out))
	l.Info("should be dropped")
	l.Warn("should appear")
	if strings.Contains(out.buf.String(), "should be dropped") {
		t.Fatalf("info log should have been filtered out")
	}
	if !strings.Contains(out.buf.String(), "should appear") {
		t.Fatalf("warn log missing from output")
	}
}

func TestWithComponentAndError(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&TextFormatter{}), WithOutput(out))
	l = l.WithComponent("writer").With(Err(errors.New("boom")))
	l.Error("commit failed")
	got := out.buf.String()
	if !strings.Contains(got, "component=writer") {
		t.Fatalf("expected component field, got %s", got)
	}
	if !strings.Contains(got, "error=boom") {
		t.Fatalf("expected error field, got %s", got)
	}
}
