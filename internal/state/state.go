// Package state persists the per-ticker alert snapshots between cycles.
//
// The state file is a flat UTF-8 JSON object keyed by ticker symbol. Losing
// it costs at most one duplicate alert, so a missing or corrupt file is
// never fatal: Load degrades to first-run semantics instead.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mjessen/stockalerts/internal/models"
)

// Store reads and writes the alert state file.
type Store struct {
	path string
	log  zerolog.Logger
}

// New creates a store for the state file at path.
func New(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log}
}

// Load returns the persisted state, or an empty map when the file is absent
// or unreadable. Corruption is logged and treated as a first run.
func (s *Store) Load() map[string]models.TickerSnapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debug().Str("path", s.path).Msg("state file absent, starting with empty state")
		} else {
			s.log.Warn().Err(err).Str("path", s.path).Msg("failed to read state file, starting with empty state")
		}
		return map[string]models.TickerSnapshot{}
	}

	var st map[string]models.TickerSnapshot
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("corrupt state file, starting with empty state")
		return map[string]models.TickerSnapshot{}
	}
	if st == nil {
		st = map[string]models.TickerSnapshot{}
	}
	s.log.Debug().Int("tickers", len(st)).Msg("loaded alert state")
	return st
}

// Save writes the full state atomically: marshal to a temp file in the same
// directory, then rename over the target so a crash cannot leave a
// truncated file behind.
func (s *Store) Save(st map[string]models.TickerSnapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.log.Debug().Int("tickers", len(st)).Msg("saved alert state")
	return nil
}
