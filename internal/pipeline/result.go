// Package pipeline validates the content produced at each stage of the
// AI-editing pipeline. Every stage is checked on its own; results are
// advisory and never block the editor.
package pipeline

import (
	"fmt"
	"strings"
)

// Stage names a checkpoint of the editing pipeline.
type Stage string

const (
	StageOriginal Stage = "original"
	// StageApply is the model applying suggestions to the original.
	StageApply Stage = "step2"
	// StageDiff is the CriticMarkup diff between original and edited text.
	StageDiff Stage = "step3"
	// StagePreprocess is the diff after preprocessing for import.
	StagePreprocess Stage = "step4"
)

// Severity grades a failed check.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// CheckID is the stable identifier of one validation check.
type CheckID string

const (
	CheckLengthRatio          CheckID = "length_ratio"
	CheckHeadingPreservation  CheckID = "heading_preservation"
	CheckUnexpandedMarkers    CheckID = "unexpanded_markers"
	CheckBalancedInsertions   CheckID = "balanced_insertions"
	CheckBalancedDeletions    CheckID = "balanced_deletions"
	CheckBalancedSubstitution CheckID = "balanced_substitutions"
	CheckHeadingNewlines      CheckID = "heading_newlines"
	CheckMarkupHeadingFormat  CheckID = "criticmarkup_heading_format"
)

// Snapshot is the content of one stage: what went in and what came out.
type Snapshot struct {
	Stage  Stage  `json:"stage"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Issue is one failed check.
type Issue struct {
	Check    CheckID  `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Check, i.Message)
}

// Result is the outcome of validating one stage. Valid is false only when an
// error-severity check failed.
type Result struct {
	Stage    Stage    `json:"stage"`
	Valid    bool     `json:"valid"`
	Severity Severity `json:"severity"`
	Issues   []Issue  `json:"issues"`
}

func newResult(stage Stage, issues []Issue) Result {
	r := Result{Stage: stage, Valid: true, Severity: SeverityWarning, Issues: issues}
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			r.Valid = false
			r.Severity = SeverityError
		}
	}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	return r
}

// Messages returns the human-readable issue texts.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		out = append(out, issue.Message)
	}
	return out
}

// Failed reports whether the given check produced an issue.
func (r Result) Failed(id CheckID) (Issue, bool) {
	for _, issue := range r.Issues {
		if issue.Check == id {
			return issue, true
		}
	}
	return Issue{}, false
}

// CheckStatus is what the dashboard shows for one check.
type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusWarn    CheckStatus = "warn"
	StatusFail    CheckStatus = "fail"
	StatusSkipped CheckStatus = "skipped"
)

// Report gathers the results of one validation run in stage order.
type Report struct {
	Results []Result `json:"results"`
}

// Valid reports whether every stage is valid.
func (r Report) Valid() bool {
	for _, res := range r.Results {
		if !res.Valid {
			return false
		}
	}
	return true
}

// Result returns the result for a stage.
func (r Report) Result(stage Stage) (Result, bool) {
	for _, res := range r.Results {
		if res.Stage == stage {
			return res, true
		}
	}
	return Result{}, false
}

// Status maps a check of a stage to its dashboard status.
func (r Report) Status(stage Stage, id CheckID) CheckStatus {
	res, ok := r.Result(stage)
	if !ok {
		return StatusSkipped
	}
	issue, failed := res.Failed(id)
	switch {
	case !failed:
		return StatusPass
	case issue.Severity == SeverityError:
		return StatusFail
	default:
		return StatusWarn
	}
}

// Summary renders one line per stage.
func (r Report) Summary() string {
	var b strings.Builder
	for _, res := range r.Results {
		state := "ok"
		if !res.Valid {
			state = "FAILED"
		} else if len(res.Issues) > 0 {
			state = "warnings"
		}
		fmt.Fprintf(&b, "%s: %s", res.Stage, state)
		for _, issue := range res.Issues {
			fmt.Fprintf(&b, "\n  %s", issue)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
