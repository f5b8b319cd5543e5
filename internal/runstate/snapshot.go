package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadState reads a materialized snapshot. Failures map to the
// sentinel errors in errors.go.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateMissing
		}
		return nil, fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, ErrStateInvalid
	}
	if state.Runs == nil {
		return nil, ErrStateUnexpectedShape
	}
	if state.GeneratedAtMs <= 0 {
		return nil, ErrStateMissingTimestamp
	}
	return &state, nil
}

// WriteState persists a snapshot atomically: write to a temp file in
// the same directory, fsync, then rename over the target. A concurrent
// reader sees either the old snapshot or the new one, never a torn mix.
func WriteState(path string, state *State) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".runtime-state-*.json")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
