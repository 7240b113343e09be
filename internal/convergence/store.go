package convergence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const (
	stateFileName = "convergence.json"

	// maxStoredSessions bounds the durable corpus.
	maxStoredSessions = 50
)

// stateFile is the on-disk layout. Field names are part of the persisted
// format and must stay stable across versions.
type stateFile struct {
	Sessions           []HistoricalSession `json:"sessions"`
	AutoForceThreshold float64             `json:"auto_force_threshold,omitempty"`
}

// Store is the durable, bounded corpus of historical sessions plus the
// persisted adaptive auto-force threshold. It lives in a project-local
// state directory. A corrupt state file is discarded with a warning and
// replaced on the next save; corruption never fails a run.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	state stateFile
}

// NewStore opens (or initializes) the store under stateDir.
func NewStore(stateDir string, logger *zap.Logger) (*Store, error) {
	if stateDir == "" {
		return nil, errors.New("state directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &Store{
		path:   filepath.Join(stateDir, stateFileName),
		logger: logger,
	}
	s.load()
	return s, nil
}

// load reads the state file. Unreadable or corrupt content resets the
// corpus to empty.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read state file, starting with empty history",
				zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("state file is corrupt, discarding historical sessions",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	s.state = state
}

// AppendSession adds a finished session, trimming the corpus to the most
// recent entries, and persists synchronously.
func (s *Store) AppendSession(ctx context.Context, session HistoricalSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Sessions = append(s.state.Sessions, session)
	if len(s.state.Sessions) > maxStoredSessions {
		s.state.Sessions = s.state.Sessions[len(s.state.Sessions)-maxStoredSessions:]
	}
	return s.flush()
}

// Sessions returns a copy of the stored sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) []HistoricalSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HistoricalSession, len(s.state.Sessions))
	copy(out, s.state.Sessions)
	return out
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Sessions)
}

// AutoForceThreshold returns the persisted adaptive threshold, or 0 when
// none has been saved yet.
func (s *Store) AutoForceThreshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AutoForceThreshold
}

// SaveAutoForceThreshold persists the adaptive threshold alongside the
// session corpus.
func (s *Store) SaveAutoForceThreshold(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.AutoForceThreshold = v
	return s.flush()
}

// flush writes the state file atomically. Callers hold s.mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
