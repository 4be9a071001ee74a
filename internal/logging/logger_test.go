package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesJSONEntries(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Printf("imported %d nodes\n", 3)
	logger.Zap().Debug("hidden at info level")
	logger.Zap().Warn("threshold exceeded", zap.String("stage", "step2"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".critic", "logs", "critic.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"imported 3 nodes"`) {
		t.Fatalf("missing printf entry: %s", out)
	}
	if !strings.Contains(out, `"stage":"step2"`) {
		t.Fatalf("missing structured field: %s", out)
	}
	if strings.Contains(out, "hidden at info level") {
		t.Fatalf("debug entry should be filtered: %s", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(t.TempDir(), Options{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
}

func TestNilAndNopLoggersAreSafe(t *testing.T) {
	var l *Logger
	l.Printf("ignored")
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
	l.Zap().Info("ignored")
	nop := NewNop()
	nop.Printf("ignored")
	if err := nop.Close(); err != nil {
		t.Fatalf("nop Close: %v", err)
	}
}
