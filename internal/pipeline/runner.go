package pipeline

import (
	"go.uber.org/zap"

	"github.com/kingrea/critic/internal/diffgen"
	"github.com/kingrea/critic/internal/markup"
)

// Run holds the stage outputs of one pipeline pass.
type Run struct {
	Snapshots []Snapshot `json:"snapshots"`
	Report    Report     `json:"report"`
}

// Markup returns the generated CriticMarkup, after preprocessing.
func (r Run) Markup() string {
	for _, s := range r.Snapshots {
		if s.Stage == StagePreprocess {
			return s.After
		}
	}
	return ""
}

// Run derives the stage snapshots from an original and an edited text and
// validates them: step2 is the edit itself, step3 the generated diff and
// step4 the preprocessed diff.
func (v *Validator) Run(original, edited string) Run {
	diff := diffgen.Generate(original, edited)
	preprocessed := markup.Preprocess(diff)
	snapshots := []Snapshot{
		{Stage: StageApply, Before: original, After: edited},
		{Stage: StageDiff, Before: edited, After: diff},
		{Stage: StagePreprocess, Before: diff, After: preprocessed},
	}
	v.logger.Debug("pipeline run", zap.Int("original_len", len(original)), zap.Int("edited_len", len(edited)))
	return Run{Snapshots: snapshots, Report: v.Validate(snapshots...)}
}
