// Package snapshot persists pipeline stage outputs under .critic/runs so a
// run can be re-validated or inspected later.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/critic/internal/pipeline"
)

// Store manages run directories rooted at dir.
type Store struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// WithIDFunc overrides run ID generation.
func WithIDFunc(fn func() string) StoreOption {
	return func(s *Store) {
		s.newID = fn
	}
}

// NewStore builds a store rooted at the runs directory.
func NewStore(dir string, opts ...StoreOption) *Store {
	store := &Store{
		dir:   dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// RunDir returns the directory for a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.dir, runID)
}

// Save writes the original text and each stage output of snapshots to a new
// run directory and returns the run ID. Snapshots must be in pipeline order;
// the first snapshot's Before is stored as the original.
func (s *Store) Save(snapshots []pipeline.Snapshot) (string, error) {
	if len(snapshots) == 0 {
		return "", fmt.Errorf("snapshot: nothing to save")
	}
	runID := s.newID()
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	created := s.now().UTC()
	input := ""
	write := func(stage string, body string) error {
		meta := Metadata{
			Stage:     stage,
			Input:     input,
			RunID:     runID,
			CreatedAt: created,
			Checksum:  Checksum([]byte(body)),
		}
		content, err := WriteFrontMatter(meta, []byte(body))
		if err != nil {
			return err
		}
		input = stage
		return os.WriteFile(filepath.Join(dir, stage+".md"), content, 0o644)
	}
	if err := write(string(pipeline.StageOriginal), snapshots[0].Before); err != nil {
		return "", err
	}
	for _, snap := range snapshots {
		if err := write(string(snap.Stage), snap.After); err != nil {
			return "", err
		}
	}
	return runID, nil
}

type storedStage struct {
	meta Metadata
	body string
}

// LoadRun reads a run back as snapshots, each stage's Before being the output
// of the stage named in its input field. Bodies are verified against their
// checksums.
func (s *Store) LoadRun(runID string) ([]pipeline.Snapshot, error) {
	dir := s.RunDir(runID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("snapshot: run %s not found", runID)
		}
		return nil, err
	}
	stages := map[string]storedStage{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		meta, body, err := ParseFrontMatter(data)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s: %w", entry.Name(), err)
		}
		if meta.Checksum != "" && meta.Checksum != Checksum(body) {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, entry.Name())
		}
		stages[meta.Stage] = storedStage{meta: meta, body: string(body)}
	}
	var out []pipeline.Snapshot
	for _, stage := range pipeline.Stages() {
		stored, ok := stages[string(stage)]
		if !ok {
			continue
		}
		prev, ok := stages[stored.meta.Input]
		if !ok {
			return nil, fmt.Errorf("snapshot: %s input %q missing from run %s", stage, stored.meta.Input, runID)
		}
		out = append(out, pipeline.Snapshot{Stage: stage, Before: prev.body, After: stored.body})
	}
	return out, nil
}

// RunInfo summarizes a stored run.
type RunInfo struct {
	ID        string
	CreatedAt time.Time
}

// List returns stored runs, newest first.
func (s *Store) List() ([]RunInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var runs []RunInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name(), string(pipeline.StageOriginal)+".md"))
		if err != nil {
			continue
		}
		meta, _, err := ParseFrontMatter(data)
		if err != nil {
			continue
		}
		runs = append(runs, RunInfo{ID: entry.Name(), CreatedAt: meta.CreatedAt})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}
