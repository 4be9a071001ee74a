// internal/config/config.go
//
// This package handles configuration and the .critic directory structure.
// Every project that validates pipeline output gets a .critic/ folder in its
// root holding the config file, logs and stored pipeline runs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/critic/internal/pipeline"
)

const (
	// CriticDir is the name of the directory we create in each project
	CriticDir = ".critic"

	defaultLogLevel  = "info"
	defaultLogFormat = "json"
)

const defaultProjectConfigYAML = `# critic project configuration
version: 1

# Limits for the pipeline validator. Ratios are fractions of the original.
thresholds:
  min_length_ratio: 0.5
  max_length_ratio: 2.0
  min_heading_preservation: 0.5
  unexpanded_markers:
    - "[...]"
    - "[rest of content unchanged]"
    - "<!-- unchanged -->"

logging:
  level: info   # debug | info | warn | error
  format: json  # json | console

# Loopback HTTP bridge used by editor hooks.
bridge:
  enabled: true
  host: 127.0.0.1
  port: 8765
  max_body_bytes: 4194304
  timeout: 15s
`

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BridgeConfig captures the HTTP bridge section.
type BridgeConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	Host         string `yaml:"host,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	MaxBodyBytes int64  `yaml:"max_body_bytes,omitempty"`
	// Timeout is a Go duration string such as "15s".
	Timeout string `yaml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout. It returns 0 when Timeout is unset or
// invalid; loaded configs have already been validated.
func (b BridgeConfig) TimeoutDuration() time.Duration {
	if b.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ProjectConfig models .critic/config.yaml.
type ProjectConfig struct {
	Version    int                 `yaml:"version"`
	Thresholds pipeline.Thresholds `yaml:"thresholds"`
	Logging    LoggingConfig       `yaml:"logging"`
	Bridge     BridgeConfig        `yaml:"bridge"`
}

// Config holds the runtime configuration for a project.
type Config struct {
	// ProjectDir is the directory critic was pointed at
	ProjectDir string

	// CriticProjectDir is ProjectDir/.critic
	CriticProjectDir string

	Project ProjectConfig
}

// InitCriticDir creates the .critic directory structure in the given project directory.
//
// Structure created:
// .critic/
// ├── config.yaml
// ├── logs/   <- critic.log and history.jsonl
// └── runs/   <- one directory of stage snapshots per pipeline run
func InitCriticDir(projectDir string) error {
	criticDir := filepath.Join(projectDir, CriticDir)
	dirs := []string{
		filepath.Join(criticDir, "logs"),
		filepath.Join(criticDir, "runs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(criticDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
// A missing config file yields the defaults.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		CriticProjectDir: filepath.Join(projectDir, CriticDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.CriticProjectDir, "logs")
}

// RunsDir returns the directory holding stored pipeline runs
func (c *Config) RunsDir() string {
	return filepath.Join(c.CriticProjectDir, "runs")
}

// HistoryPath returns the validation history file
func (c *Config) HistoryPath() string {
	return filepath.Join(c.LogsDir(), "history.jsonl")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.CriticProjectDir, "config.yaml")
}

// Thresholds returns the validator limits.
func (c *Config) Thresholds() pipeline.Thresholds {
	return c.Project.Thresholds
}

// SetThresholds updates the validator limits and persists them.
func (c *Config) SetThresholds(t pipeline.Thresholds) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project.Thresholds = t
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:    1,
		Thresholds: pipeline.DefaultThresholds(),
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	defaults := pipeline.DefaultThresholds()
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Thresholds.MinLengthRatio == 0 && pc.Thresholds.MaxLengthRatio == 0 {
		pc.Thresholds.MinLengthRatio = defaults.MinLengthRatio
		pc.Thresholds.MaxLengthRatio = defaults.MaxLengthRatio
	}
	if pc.Thresholds.MinHeadingPreservation == 0 {
		pc.Thresholds.MinHeadingPreservation = defaults.MinHeadingPreservation
	}
	if pc.Thresholds.UnexpandedMarkers == nil {
		pc.Thresholds.UnexpandedMarkers = defaults.UnexpandedMarkers
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	if pc.Logging.Level == "" {
		pc.Logging.Level = defaultLogLevel
	}
	pc.Logging.Format = strings.ToLower(strings.TrimSpace(pc.Logging.Format))
	if pc.Logging.Format == "" {
		pc.Logging.Format = defaultLogFormat
	}
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Bridge.Timeout = strings.TrimSpace(pc.Bridge.Timeout)
	markers := pc.Thresholds.UnexpandedMarkers[:0:0]
	for _, m := range pc.Thresholds.UnexpandedMarkers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	pc.Thresholds.UnexpandedMarkers = markers
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if err := pc.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch pc.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be within 0..65535")
	}
	if pc.Bridge.MaxBodyBytes < 0 {
		return fmt.Errorf("bridge.max_body_bytes must be >= 0")
	}
	if pc.Bridge.Timeout != "" {
		if d, err := time.ParseDuration(pc.Bridge.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("bridge.timeout must be a positive duration such as 15s")
		}
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.CriticProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure critic dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
