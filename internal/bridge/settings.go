package bridge

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/critic/internal/config"
	"github.com/kingrea/critic/internal/pipeline"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the default TCP port for the bridge server.
	DefaultPort = 8765
	// DefaultMaxBodyBytes limits request payloads to 4 MB.
	DefaultMaxBodyBytes int64 = 4 << 20
	// DefaultTimeout bounds reading a request and writing its response.
	DefaultTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings is the resolved bridge configuration: project config first, then
// CRITIC_* environment overrides.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	Timeout      time.Duration
	IdleTimeout  time.Duration
	// Thresholds configure the validator behind /v1/validate and
	// /v1/generate. The zero value means pipeline.DefaultThresholds.
	Thresholds pipeline.Thresholds
}

// DefaultSettings returns the settings used without a project config.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Timeout:      DefaultTimeout,
		IdleTimeout:  DefaultIdleTimeout,
		Thresholds:   pipeline.DefaultThresholds(),
	}
}

// LoadSettings resolves the bridge settings for a project. Unlike the
// config file, which is validated when it is loaded, a malformed environment
// override is reported here.
func LoadSettings(cfg *config.Config) (Settings, error) {
	s := DefaultSettings()
	if cfg != nil {
		s.applyConfig(cfg)
	}
	if err := s.applyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}
	if err := s.Thresholds.Validate(); err != nil {
		return Settings{}, fmt.Errorf("bridge: thresholds: %w", err)
	}
	return s, nil
}

func (s *Settings) applyConfig(cfg *config.Config) {
	raw := cfg.Project.Bridge
	if raw.Enabled != nil {
		s.Enabled = *raw.Enabled
	}
	if raw.Host != "" {
		s.Host = raw.Host
	}
	if isValidPort(raw.Port) {
		s.Port = raw.Port
	}
	if raw.MaxBodyBytes > 0 {
		s.MaxBodyBytes = raw.MaxBodyBytes
	}
	if d := raw.TimeoutDuration(); d > 0 {
		s.Timeout = d
	}
	if t := cfg.Thresholds(); t.MaxLengthRatio > 0 {
		s.Thresholds = t
	}
}

// envOverride parses one CRITIC_* variable into the settings.
type envOverride struct {
	name  string
	apply func(s *Settings, value string) error
}

var envOverrides = []envOverride{
	{"CRITIC_BRIDGE_ENABLED", func(s *Settings, v string) (err error) {
		s.Enabled, err = strconv.ParseBool(v)
		return err
	}},
	{"CRITIC_BRIDGE_HOST", func(s *Settings, v string) error {
		s.Host = v
		return nil
	}},
	{"CRITIC_BRIDGE_PORT", func(s *Settings, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if !isValidPort(port) {
			return fmt.Errorf("port %d out of range", port)
		}
		s.Port = port
		return nil
	}},
	{"CRITIC_BRIDGE_MAX_BODY_BYTES", func(s *Settings, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("must be positive")
		}
		s.MaxBodyBytes = n
		return nil
	}},
	{"CRITIC_BRIDGE_TIMEOUT", func(s *Settings, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("must be positive")
		}
		s.Timeout = d
		return nil
	}},
	{"CRITIC_MIN_LENGTH_RATIO", ratio(func(t *pipeline.Thresholds) *float64 { return &t.MinLengthRatio })},
	{"CRITIC_MAX_LENGTH_RATIO", ratio(func(t *pipeline.Thresholds) *float64 { return &t.MaxLengthRatio })},
	{"CRITIC_MIN_HEADING_PRESERVATION", ratio(func(t *pipeline.Thresholds) *float64 { return &t.MinHeadingPreservation })},
}

func ratio(field func(*pipeline.Thresholds) *float64) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(&s.Thresholds) = f
		return nil
	}
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	for _, o := range envOverrides {
		value, ok := lookup(o.name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if err := o.apply(s, value); err != nil {
			return fmt.Errorf("bridge: %s=%q: %w", o.name, value, err)
		}
	}
	return nil
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func (s Settings) maxBodyBytes() int64 {
	if s.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return s.MaxBodyBytes
}

func (s Settings) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s Settings) idleTimeout() time.Duration {
	if s.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return s.IdleTimeout
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
