package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("snapshot: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("snapshot: malformed frontmatter")
	// ErrChecksumMismatch indicates the body no longer matches its recorded digest.
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
)

// Metadata describes one stored stage output.
type Metadata struct {
	Stage     string
	Input     string
	RunID     string
	CreatedAt time.Time
	Checksum  string
}

// ParseFrontMatter extracts the metadata block and body from a document that
// starts with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var envelope criticEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	meta, err := envelope.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	// WriteFrontMatter separates the fence from the body with a blank line.
	body := bytes.TrimPrefix(parts[1], []byte("\n"))
	return meta, body, nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.Stage == "" || meta.RunID == "" {
		return nil, fmt.Errorf("snapshot: metadata missing stage or run id")
	}
	envelope := criticEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// Checksum returns the digest recorded for body.
func Checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

type criticEnvelope struct {
	Critic criticMetadata `yaml:"critic"`
}

type criticMetadata struct {
	Stage    string `yaml:"stage"`
	Input    string `yaml:"input,omitempty"`
	Run      string `yaml:"run"`
	Created  string `yaml:"created"`
	Checksum string `yaml:"checksum,omitempty"`
}

func (e criticEnvelope) toMetadata() (Metadata, error) {
	if e.Critic.Stage == "" || e.Critic.Run == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(e.Critic.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot: parse created timestamp: %w", err)
	}
	return Metadata{
		Stage:     e.Critic.Stage,
		Input:     e.Critic.Input,
		RunID:     e.Critic.Run,
		CreatedAt: created,
		Checksum:  e.Critic.Checksum,
	}, nil
}

func (e *criticEnvelope) fromMetadata(meta Metadata) {
	e.Critic.Stage = meta.Stage
	e.Critic.Input = meta.Input
	e.Critic.Run = meta.RunID
	e.Critic.Created = meta.CreatedAt.UTC().Format(timeLayout)
	e.Critic.Checksum = meta.Checksum
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("snapshot: empty created timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
