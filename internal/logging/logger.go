package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/critic/internal/config"
)

// Logger appends structured entries to .critic/logs/critic.log so runs can
// be inspected after the command exits.
type Logger struct {
	file *os.File
	zap  *zap.Logger
}

// Options selects level and encoding. Zero values mean info and json.
type Options struct {
	Level  string
	Format string
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string, opts Options) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.CriticDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "critic.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	level := zapcore.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(opts.Format, "console") {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(f), level)
	return &Logger{file: f, zap: zap.New(core)}, nil
}

// FromConfig opens the project log with the configured level and format.
func FromConfig(cfg *config.Config) (*Logger, error) {
	return New(cfg.ProjectDir, Options{Level: cfg.Project.Logging.Level, Format: cfg.Project.Logging.Format})
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Zap exposes the structured logger for packages that take a *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.zap == nil {
		return zap.NewNop()
	}
	return l.zap
}

// Close flushes and releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.zap.Sync()
	return l.file.Close()
}

// Printf writes a single info entry to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.zap == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.zap.Info(line)
}
