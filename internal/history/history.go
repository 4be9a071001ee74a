// Package history keeps an append-only record of validation runs.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kingrea/critic/internal/pipeline"
)

// Entry is one recorded validation.
type Entry struct {
	Time     time.Time         `json:"time"`
	RunID    string            `json:"run_id,omitempty"`
	Source   string            `json:"source,omitempty"`
	Valid    bool              `json:"valid"`
	Failures []pipeline.Issue  `json:"failures,omitempty"`
	Stages   []pipeline.Result `json:"stages,omitempty"`
}

// FromReport builds an entry for report.
func FromReport(report pipeline.Report, source, runID string, at time.Time) Entry {
	entry := Entry{
		Time:   at.UTC(),
		RunID:  runID,
		Source: source,
		Valid:  report.Valid(),
		Stages: report.Results,
	}
	for _, r := range report.Results {
		for _, issue := range r.Issues {
			if issue.Severity == pipeline.SeverityError {
				entry.Failures = append(entry.Failures, issue)
			}
		}
	}
	return entry
}

// History persists entries as JSON lines.
type History struct {
	path string
	mu   sync.Mutex
}

// New creates a history that writes to the provided path.
func New(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &History{path: path}, nil
}

// Path returns the file backing this history.
func (h *History) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Append writes a single entry.
func (h *History) Append(entry Entry) error {
	if h == nil {
		return nil
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("history: encode entry: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	file, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("history: open: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Tail returns up to maxEntries of the most recent entries and the total
// number of entries recorded. Lines that fail to decode are skipped.
func (h *History) Tail(maxEntries int) ([]Entry, int) {
	if h == nil || maxEntries <= 0 {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	file, err := os.Open(h.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	total := len(entries)
	if total > maxEntries {
		entries = entries[total-maxEntries:]
	}
	return entries, total
}
