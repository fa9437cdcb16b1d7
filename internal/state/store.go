package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// Reserved state keys.
const (
	KeyLastProcessedTimestamp = "last_processed_timestamp"
	KeyLastProcessedDate      = "last_processed_date"
	KeyLastStatus             = "last_status"
	KeyLastRunAt              = "last_run_at"
	KeyLastRunID              = "last_run_id"
)

// Pipeline terminal statuses recorded in state.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// DirName is the state directory relative to the project root.
const DirName = ".dft/state"

// Store is the per-project durable key/value store, one JSON file per
// pipeline. It is single-writer per process; the orchestrator never runs two
// windows of the same pipeline concurrently.
type Store struct {
	dir string

	// writeFile is swappable so tests can inject I/O faults.
	writeFile func(path string, data []byte, perm os.FileMode) error
}

// NewStore creates a store rooted at projectRoot/.dft/state.
func NewStore(projectRoot string) *Store {
	return &Store{
		dir:       filepath.Join(projectRoot, filepath.FromSlash(DirName)),
		writeFile: os.WriteFile,
	}
}

// Dir returns the state directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the current state for a pipeline. A missing file yields an
// empty map.
func (s *Store) Load(pipeline string) (map[string]any, error) {
	data, err := os.ReadFile(s.path(pipeline))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, dfterrors.NewStateError(pipeline, "load", err)
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, dfterrors.NewStateError(pipeline, "load", err)
	}
	if state == nil {
		state = map[string]any{}
	}
	return state, nil
}

// Save atomically replaces the pipeline's state file: the new content is
// written to a temp file in the same directory, then renamed over the old
// one. On failure the previous file is left untouched.
func (s *Store) Save(pipeline string, state map[string]any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return dfterrors.NewStateError(pipeline, "save", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return dfterrors.NewStateError(pipeline, "save", err)
	}
	data = append(data, '\n')

	tmp := s.path(pipeline) + ".tmp"
	if err := s.writeFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return dfterrors.NewStateError(pipeline, "save", err)
	}
	if err := os.Rename(tmp, s.path(pipeline)); err != nil {
		_ = os.Remove(tmp)
		return dfterrors.NewStateError(pipeline, "save", err)
	}
	return nil
}

// Update applies kv on top of the current state with the same atomicity as
// Save.
func (s *Store) Update(pipeline string, kv map[string]any) error {
	state, err := s.Load(pipeline)
	if err != nil {
		return err
	}
	for k, v := range kv {
		state[k] = v
	}
	return s.Save(pipeline, state)
}

func (s *Store) path(pipeline string) string {
	return filepath.Join(s.dir, fmt.Sprintf("pipeline_%s.json", pipeline))
}

// Reader adapts one pipeline's loaded state to the renderer's read-only view.
type Reader struct {
	state map[string]any
}

// NewReader wraps a loaded state map.
func NewReader(state map[string]any) *Reader {
	return &Reader{state: state}
}

// Get looks up a key.
func (r *Reader) Get(key string) (any, bool) {
	if r == nil || r.state == nil {
		return nil, false
	}
	v, ok := r.state[key]
	return v, ok
}
