package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/critic/internal/pipeline"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	criticDir := filepath.Join(projectDir, ".critic")
	if err := os.MkdirAll(criticDir, 0755); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, CriticProjectDir: criticDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Thresholds().MaxLengthRatio != 2.0 {
		t.Fatalf("expected default max ratio 2.0, got %v", c.Thresholds().MaxLengthRatio)
	}
	if c.Project.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", c.Project.Logging.Level)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	criticDir := filepath.Join(projectDir, ".critic")
	if err := os.MkdirAll(criticDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
thresholds:
  min_length_ratio: 0.8
  max_length_ratio: 1.25
  min_heading_preservation: 0.9
  unexpanded_markers:
    - "  (snip)  "
    - ""
logging:
  level: DEBUG
  format: console
bridge:
  enabled: false
  port: 9001
  max_body_bytes: 1024
  timeout: " 3s "
`)
	if err := os.WriteFile(filepath.Join(criticDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, CriticProjectDir: criticDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	th := c.Thresholds()
	if th.MinLengthRatio != 0.8 || th.MaxLengthRatio != 1.25 || th.MinHeadingPreservation != 0.9 {
		t.Fatalf("unexpected thresholds: %+v", th)
	}
	if len(th.UnexpandedMarkers) != 1 || th.UnexpandedMarkers[0] != "(snip)" {
		t.Fatalf("expected trimmed marker list, got %#v", th.UnexpandedMarkers)
	}
	if c.Project.Logging.Level != "debug" || c.Project.Logging.Format != "console" {
		t.Fatalf("unexpected logging config: %+v", c.Project.Logging)
	}
	if c.Project.Bridge.Enabled == nil || *c.Project.Bridge.Enabled {
		t.Fatalf("expected bridge disabled")
	}
	if c.Project.Bridge.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", c.Project.Bridge.Port)
	}
	if c.Project.Bridge.MaxBodyBytes != 1024 || c.Project.Bridge.TimeoutDuration() != 3*time.Second {
		t.Fatalf("unexpected bridge limits: %+v", c.Project.Bridge)
	}
}

func TestLoadProjectConfigRejectsBadBridgeLimits(t *testing.T) {
	for _, body := range []string{
		"bridge:\n  timeout: soon\n",
		"bridge:\n  timeout: -1s\n",
		"bridge:\n  max_body_bytes: -5\n",
	} {
		projectDir := t.TempDir()
		criticDir := filepath.Join(projectDir, ".critic")
		if err := os.MkdirAll(criticDir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(criticDir, "config.yaml"), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewConfig(projectDir); err == nil || !strings.Contains(err.Error(), "bridge.") {
			t.Fatalf("expected bridge error for %q, got %v", body, err)
		}
	}
}

func TestLoadProjectConfigRejectsInvalidThresholds(t *testing.T) {
	projectDir := t.TempDir()
	criticDir := filepath.Join(projectDir, ".critic")
	if err := os.MkdirAll(criticDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
thresholds:
  min_length_ratio: 3
  max_length_ratio: 2
`)
	if err := os.WriteFile(filepath.Join(criticDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected validation error")
	} else if !strings.Contains(err.Error(), "thresholds") {
		t.Fatalf("expected thresholds error, got %v", err)
	}
}

func TestLoadProjectConfigRejectsUnknownLogLevel(t *testing.T) {
	projectDir := t.TempDir()
	criticDir := filepath.Join(projectDir, ".critic")
	if err := os.MkdirAll(criticDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(criticDir, "config.yaml"), []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected logging level error")
	}
}

func TestInitCriticDirWritesDefaults(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitCriticDir(projectDir); err != nil {
		t.Fatalf("InitCriticDir: %v", err)
	}
	for _, dir := range []string{"logs", "runs"} {
		if info, err := os.Stat(filepath.Join(projectDir, ".critic", dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s dir, err=%v", dir, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	want := pipeline.DefaultThresholds()
	got := c.Thresholds()
	if got.MinLengthRatio != want.MinLengthRatio || len(got.UnexpandedMarkers) != len(want.UnexpandedMarkers) {
		t.Fatalf("expected default thresholds, got %+v", got)
	}
	if c.Project.Bridge.Port != 8765 {
		t.Fatalf("expected bridge port 8765, got %d", c.Project.Bridge.Port)
	}
	if c.Project.Bridge.MaxBodyBytes != 4<<20 || c.Project.Bridge.TimeoutDuration() != 15*time.Second {
		t.Fatalf("expected default bridge limits, got %+v", c.Project.Bridge)
	}
}

func TestInitCriticDirKeepsExistingConfig(t *testing.T) {
	projectDir := t.TempDir()
	criticDir := filepath.Join(projectDir, ".critic")
	if err := os.MkdirAll(criticDir, 0755); err != nil {
		t.Fatal(err)
	}
	custom := []byte("version: 1\nlogging:\n  level: warn\n")
	if err := os.WriteFile(filepath.Join(criticDir, "config.yaml"), custom, 0644); err != nil {
		t.Fatal(err)
	}
	if err := InitCriticDir(projectDir); err != nil {
		t.Fatalf("InitCriticDir: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(criticDir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(custom) {
		t.Fatalf("config was overwritten: %s", data)
	}
}

func TestSetThresholdsPersists(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	th := pipeline.DefaultThresholds()
	th.MaxLengthRatio = 1.5
	if err := c.SetThresholds(th); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	reloaded, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Thresholds().MaxLengthRatio != 1.5 {
		t.Fatalf("expected persisted ratio 1.5, got %v", reloaded.Thresholds().MaxLengthRatio)
	}
	th.MinLengthRatio = -1
	if err := c.SetThresholds(th); err == nil {
		t.Fatalf("expected invalid thresholds to be rejected")
	}
}

func TestConfigPaths(t *testing.T) {
	c := &Config{ProjectDir: "/p", CriticProjectDir: filepath.Join("/p", CriticDir)}
	if c.RunsDir() != filepath.Join("/p", ".critic", "runs") {
		t.Fatalf("unexpected runs dir %s", c.RunsDir())
	}
	if c.HistoryPath() != filepath.Join("/p", ".critic", "logs", "history.jsonl") {
		t.Fatalf("unexpected history path %s", c.HistoryPath())
	}
}
