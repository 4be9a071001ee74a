package pipeline

import (
	"go.uber.org/zap"
)

// Validator runs the stage checks.
type Validator struct {
	thresholds Thresholds
	logger     *zap.Logger
}

// Option customizes a Validator.
type Option func(*Validator)

// WithThresholds overrides the default limits.
func WithThresholds(t Thresholds) Option {
	return func(v *Validator) {
		v.thresholds = t
	}
}

// WithLogger attaches a logger for entry/exit instrumentation.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewValidator builds a validator with default thresholds.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		thresholds: DefaultThresholds(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Thresholds returns the limits in use.
func (v *Validator) Thresholds() Thresholds {
	return v.thresholds
}

// ValidateStage checks one snapshot. Stages without checks are valid.
func (v *Validator) ValidateStage(s Snapshot) Result {
	v.logger.Debug("validate stage", zap.String("stage", string(s.Stage)), zap.Int("after_len", len(s.After)))
	var issues []Issue
	for _, check := range stageChecks[s.Stage] {
		if msg := check.Run(s, v.thresholds); msg != "" {
			issues = append(issues, Issue{Check: check.ID, Severity: check.Severity, Message: msg})
		}
	}
	result := newResult(s.Stage, issues)
	v.logger.Debug("stage validated",
		zap.String("stage", string(s.Stage)),
		zap.Bool("valid", result.Valid),
		zap.Int("issues", len(result.Issues)),
	)
	return result
}

// Validate checks every snapshot independently and returns the results in
// input order.
func (v *Validator) Validate(snapshots ...Snapshot) Report {
	report := Report{Results: make([]Result, 0, len(snapshots))}
	for _, s := range snapshots {
		report.Results = append(report.Results, v.ValidateStage(s))
	}
	if !report.Valid() {
		v.logger.Info("pipeline validation failed", zap.Int("stages", len(snapshots)))
	}
	return report
}
