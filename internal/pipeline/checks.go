package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/markup"
)

// Thresholds holds the tunable limits of the heuristic checks.
type Thresholds struct {
	MinLengthRatio         float64  `yaml:"min_length_ratio" json:"min_length_ratio"`
	MaxLengthRatio         float64  `yaml:"max_length_ratio" json:"max_length_ratio"`
	MinHeadingPreservation float64  `yaml:"min_heading_preservation" json:"min_heading_preservation"`
	UnexpandedMarkers      []string `yaml:"unexpanded_markers" json:"unexpanded_markers"`
}

// DefaultThresholds returns the limits used when no configuration is given.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinLengthRatio:         0.5,
		MaxLengthRatio:         2.0,
		MinHeadingPreservation: 0.5,
		UnexpandedMarkers:      []string{"[...]", "[rest of content unchanged]", "<!-- unchanged -->"},
	}
}

// Validate reports inconsistent limits.
func (t Thresholds) Validate() error {
	if t.MinLengthRatio < 0 {
		return fmt.Errorf("min_length_ratio must be >= 0")
	}
	if t.MaxLengthRatio <= 0 || t.MaxLengthRatio < t.MinLengthRatio {
		return fmt.Errorf("max_length_ratio must be > 0 and >= min_length_ratio")
	}
	if t.MinHeadingPreservation < 0 || t.MinHeadingPreservation > 1 {
		return fmt.Errorf("min_heading_preservation must be within [0, 1]")
	}
	return nil
}

// CheckFunc inspects a snapshot and returns a failure message, or "" when
// the check passes.
type CheckFunc func(s Snapshot, t Thresholds) string

// Check is one named rule run against a stage.
type Check struct {
	ID       CheckID
	Stage    Stage
	Severity Severity
	Run      CheckFunc
}

var stageChecks = map[Stage][]Check{
	StageApply: {
		{ID: CheckLengthRatio, Stage: StageApply, Severity: SeverityError, Run: checkLengthRatio},
		{ID: CheckHeadingPreservation, Stage: StageApply, Severity: SeverityWarning, Run: checkHeadingPreservation},
		{ID: CheckUnexpandedMarkers, Stage: StageApply, Severity: SeverityError, Run: checkUnexpandedMarkers},
	},
	StageDiff: {
		{ID: CheckBalancedInsertions, Stage: StageDiff, Severity: SeverityError, Run: checkBalanced(markup.TokenInsOpen, markup.TokenInsClose, "insertion")},
		{ID: CheckBalancedDeletions, Stage: StageDiff, Severity: SeverityError, Run: checkBalanced(markup.TokenDelOpen, markup.TokenDelClose, "deletion")},
		{ID: CheckBalancedSubstitution, Stage: StageDiff, Severity: SeverityError, Run: checkSubstitutions},
	},
	StagePreprocess: {
		{ID: CheckHeadingNewlines, Stage: StagePreprocess, Severity: SeverityError, Run: checkHeadingNewlines},
		{ID: CheckMarkupHeadingFormat, Stage: StagePreprocess, Severity: SeverityError, Run: checkSpanHeadings},
	},
}

// ChecksFor returns the checks run for a stage, in order.
func ChecksFor(stage Stage) []Check {
	return append([]Check(nil), stageChecks[stage]...)
}

// Stages lists the stages that have checks, in pipeline order.
func Stages() []Stage {
	return []Stage{StageApply, StageDiff, StagePreprocess}
}

func checkLengthRatio(s Snapshot, t Thresholds) string {
	original := utf8.RuneCountInString(s.Before)
	if original == 0 {
		return ""
	}
	ratio := float64(utf8.RuneCountInString(s.After)) / float64(original)
	switch {
	case ratio < t.MinLengthRatio:
		return fmt.Sprintf("content too short: %.0f%% of original length (minimum %.0f%%)", ratio*100, t.MinLengthRatio*100)
	case ratio > t.MaxLengthRatio:
		return fmt.Sprintf("content too long: %.0f%% of original length (maximum %.0f%%)", ratio*100, t.MaxLengthRatio*100)
	}
	return ""
}

var headingLine = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)

func headingTexts(text string) []string {
	var out []string
	for _, m := range headingLine.FindAllStringSubmatch(text, -1) {
		out = append(out, normalizeHeading(m[1]))
	}
	return out
}

func normalizeHeading(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func checkHeadingPreservation(s Snapshot, t Thresholds) string {
	original := headingTexts(s.Before)
	if len(original) == 0 {
		return ""
	}
	edited := map[string]struct{}{}
	for _, h := range headingTexts(s.After) {
		edited[h] = struct{}{}
	}
	kept := 0
	for _, h := range original {
		if _, ok := edited[h]; ok {
			kept++
		}
	}
	ratio := float64(kept) / float64(len(original))
	if ratio < t.MinHeadingPreservation {
		return fmt.Sprintf("headings lost: %d of %d original headings preserved (minimum %.0f%%)", kept, len(original), t.MinHeadingPreservation*100)
	}
	return ""
}

func checkUnexpandedMarkers(s Snapshot, t Thresholds) string {
	var found []string
	for _, marker := range t.UnexpandedMarkers {
		if marker != "" && strings.Contains(s.After, marker) {
			found = append(found, fmt.Sprintf("%q", marker))
		}
	}
	if len(found) == 0 {
		return ""
	}
	return "unexpanded placeholder in output: " + strings.Join(found, ", ")
}

func checkBalanced(opener, closer markup.TokenKind, label string) CheckFunc {
	return func(s Snapshot, _ Thresholds) string {
		depth, unterminated, stray := 0, 0, 0
		for _, tok := range markup.Tokenize(s.After) {
			switch tok.Kind {
			case opener:
				if depth > 0 {
					unterminated++
				}
				depth = 1
			case closer:
				if depth == 0 {
					stray++
				}
				depth = 0
			}
		}
		unterminated += depth
		if unterminated == 0 && stray == 0 {
			return ""
		}
		return fmt.Sprintf("unbalanced %s markers: %d unterminated, %d without opener", label, unterminated, stray)
	}
}

func checkSubstitutions(s Snapshot, _ Thresholds) string {
	inside, separated := false, false
	unterminated, stray, missing := 0, 0, 0
	for _, tok := range markup.Tokenize(s.After) {
		switch tok.Kind {
		case markup.TokenSubOpen:
			if inside {
				unterminated++
			}
			inside, separated = true, false
		case markup.TokenSeparator:
			if inside {
				separated = true
			}
		case markup.TokenSubClose:
			switch {
			case !inside:
				stray++
			case !separated:
				missing++
			}
			inside = false
		}
	}
	if inside {
		unterminated++
	}
	if unterminated == 0 && stray == 0 && missing == 0 {
		return ""
	}
	return fmt.Sprintf("unbalanced substitution markers: %d unterminated, %d without opener, %d missing ~> separator", unterminated, stray, missing)
}

func checkHeadingNewlines(s Snapshot, _ Thresholds) string {
	spans := markup.Scan(s.After)
	var bad []string
	for _, h := range markup.HeadingMarkers(s.After) {
		if _, inSpan := markup.SpanAt(spans, h.Offset); inSpan {
			continue
		}
		if !strings.HasSuffix(s.After[:h.Offset], "\n") && h.Offset != 0 {
			bad = append(bad, excerpt(s.After, h.Offset))
		}
	}
	if len(bad) == 0 {
		return ""
	}
	return fmt.Sprintf("heading not on its own line: %s", strings.Join(bad, ", "))
}

// checkSpanHeadings requires a heading inside a span to start a line within
// the span, or to open the span when the span itself starts a line.
func checkSpanHeadings(s Snapshot, _ Thresholds) string {
	spans := markup.Scan(s.After)
	var bad []string
	for _, h := range markup.HeadingMarkers(s.After) {
		span, inSpan := markup.SpanAt(spans, h.Offset)
		if !inSpan {
			continue
		}
		if h.LineStart {
			continue
		}
		if bodyStart(span, h.Offset) && lineStartAt(s.After, span.Start) {
			continue
		}
		bad = append(bad, excerpt(s.After, h.Offset))
	}
	if len(bad) == 0 {
		return ""
	}
	return fmt.Sprintf("heading inside CriticMarkup not on its own line: %s", strings.Join(bad, ", "))
}

func bodyStart(span markup.Span, offset int) bool {
	if offset == span.BodyStart() {
		return true
	}
	if span.Tag == document.TagUpdate {
		sep := span.BodyStart() + len(span.Before) + len(markup.Separator)
		return offset == sep
	}
	return false
}

func lineStartAt(text string, offset int) bool {
	if offset == 0 {
		return true
	}
	prefix := text[:offset]
	return strings.HasSuffix(prefix, "\n") || strings.HasSuffix(prefix, markup.LineBreak)
}

func excerpt(text string, offset int) string {
	end := offset + 40
	if nl := strings.IndexAny(text[offset:], "\n"); nl >= 0 && offset+nl < end {
		end = offset + nl
	}
	if end > len(text) {
		end = len(text)
	}
	return fmt.Sprintf("%q", text[offset:end])
}
