// Package store provides crash-safe persistence using JSON files.
//
// Two things survive restarts: the adaptive risk parameters (a single JSON
// file written with atomic replacement) and an append-only audit log of trade
// outcomes (one JSON line per outcome). Writes to risk_params.json go to a
// .tmp file first, then rename over the target, so the file is never left in
// a partial state.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

const (
	riskParamsFile = "risk_params.json"
	outcomesFile   = "outcomes.jsonl"
)

// Store persists engine state to a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SaveRiskParams atomically persists the current risk parameters.
func (s *Store) SaveRiskParams(params types.RiskParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal risk params: %w", err)
	}

	path := filepath.Join(s.dir, riskParamsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write risk params: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadRiskParams restores persisted risk parameters.
// Returns nil, nil if none were saved (fresh start).
func (s *Store) LoadRiskParams() (*types.RiskParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, riskParamsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read risk params: %w", err)
	}

	var params types.RiskParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("unmarshal risk params: %w", err)
	}
	return &params, nil
}

// AppendOutcome appends one trade outcome to the audit log.
func (s *Store) AppendOutcome(outcome types.TradeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(s.dir, outcomesFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return f.Sync()
}

// ReadOutcomes loads the full audit log. Returns nil, nil when no log exists.
// Malformed lines are skipped rather than failing the whole read.
func (s *Store) ReadOutcomes() ([]types.TradeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, outcomesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var outcomes []types.TradeOutcome
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var o types.TradeOutcome
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil {
			continue
		}
		outcomes = append(outcomes, o)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return outcomes, nil
}
