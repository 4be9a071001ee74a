package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/pipeline"
)

// ProtocolVersion identifies the bridge contract version exposed via /health.
const ProtocolVersion = "1.0.0"

// ExportMode selects how /v1/export renders a tree.
type ExportMode string

const (
	// ModeMarkup re-emits every change as a marker span.
	ModeMarkup ExportMode = "markup"
	// ModeAccept renders the text with every change accepted.
	ModeAccept ExportMode = "accept"
	// ModeReject renders the text with every change rejected.
	ModeReject ExportMode = "reject"
	// ModeBefore flattens every change, keeping the before side of substitutions.
	ModeBefore ExportMode = "before"
	// ModeAfter flattens every change, keeping the after side of substitutions.
	ModeAfter ExportMode = "after"
)

// ImportRequest carries marker text to parse. Raw text is preprocessed first.
type ImportRequest struct {
	Text string `json:"text"`
	Raw  bool   `json:"raw"`
}

// ImportResponse returns the parsed tree.
type ImportResponse struct {
	Document *document.Node `json:"document"`
	Changes  int            `json:"changes"`
}

// ExportRequest carries a tree, or marker text to parse, and the export mode.
type ExportRequest struct {
	Document *document.Node `json:"document,omitempty"`
	Text     string         `json:"text,omitempty"`
	Mode     ExportMode     `json:"mode"`
	Newlines bool           `json:"newlines,omitempty"`
	Cleanup  bool           `json:"cleanup,omitempty"`
}

// Options returns the render options the request asks for.
func (r ExportRequest) Options() RenderOptions {
	return RenderOptions{Newlines: r.Newlines, Cleanup: r.Cleanup}
}

// Normalize applies defaults and canonical formatting before validation.
func (r *ExportRequest) Normalize() {
	if r == nil {
		return
	}
	r.Mode = ExportMode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	if r.Mode == "" {
		r.Mode = ModeMarkup
	}
	if r.Document != nil {
		document.Relink(r.Document)
	}
}

// Validate ensures the request is well-formed.
func (r ExportRequest) Validate() error {
	switch r.Mode {
	case ModeMarkup, ModeAccept, ModeReject, ModeBefore, ModeAfter:
	default:
		return fmt.Errorf("unknown export mode %q", r.Mode)
	}
	if r.Document == nil && r.Text == "" {
		return errors.New("document or text is required")
	}
	if r.Document != nil {
		return checkRoot(r.Document)
	}
	return nil
}

func checkRoot(root *document.Node) error {
	if root.Kind != document.KindRoot {
		return fmt.Errorf("document must be a %s node", document.KindRoot)
	}
	return document.Check(root)
}

// ExportResponse returns the rendered text.
type ExportResponse struct {
	Text string `json:"text"`
}

// ResolveRequest names one change in a tree and the decision to apply.
type ResolveRequest struct {
	Document *document.Node `json:"document"`
	Key      string         `json:"key"`
	Decision string         `json:"decision"`
}

// Normalize trims the key and rebuilds parent pointers.
func (r *ResolveRequest) Normalize() {
	if r == nil {
		return
	}
	r.Key = strings.TrimSpace(r.Key)
	if r.Document != nil {
		document.Relink(r.Document)
	}
}

// Validate ensures the request is well-formed and returns the parsed
// decision.
func (r ResolveRequest) Validate() (document.Decision, error) {
	if r.Document == nil {
		return document.Accept, errors.New("document is required")
	}
	if r.Key == "" {
		return document.Accept, errors.New("key is required")
	}
	decision, err := document.ParseDecision(r.Decision)
	if err != nil {
		return document.Accept, err
	}
	return decision, checkRoot(r.Document)
}

// ResolveResponse returns the updated tree, its marker text and how many
// changes remain.
type ResolveResponse struct {
	Document  *document.Node `json:"document"`
	Text      string         `json:"text"`
	Remaining int            `json:"remaining"`
}

// ValidateRequest carries the stage snapshots to check.
type ValidateRequest struct {
	Snapshots []pipeline.Snapshot `json:"snapshots"`
}

// Validate ensures the request is well-formed.
func (r ValidateRequest) Validate() error {
	if len(r.Snapshots) == 0 {
		return errors.New("at least one snapshot is required")
	}
	for i, s := range r.Snapshots {
		if strings.TrimSpace(string(s.Stage)) == "" {
			return fmt.Errorf("snapshot %d: stage is required", i)
		}
	}
	return nil
}

// GenerateRequest carries the texts to diff.
type GenerateRequest struct {
	Original string `json:"original"`
	Edited   string `json:"edited"`
}

// GenerateResponse returns the generated markup and the pipeline report.
type GenerateResponse struct {
	Markup string       `json:"markup"`
	Run    pipeline.Run `json:"run"`
	Valid  bool         `json:"valid"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type validateResponse struct {
	Valid  bool            `json:"valid"`
	Report pipeline.Report `json:"report"`
}
