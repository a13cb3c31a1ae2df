package state

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	logx "modelwatch/pkg/logx"
)

// fileStore keeps the whole aggregate in a single JSON document, written
// atomically (temp file + rename) so a crash mid-write never corrupts the
// prior valid state.
type fileStore struct {
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	return &fileStore{path: cfg.Path, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context) *State {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("state file unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return NewState()
	}

	st := NewState()
	if err := json.Unmarshal(b, st); err != nil {
		s.log.Warn("state file corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return NewState()
	}
	st.normalize()
	return st
}

func (s *fileStore) Save(ctx context.Context, st *State) error {
	_ = ctx
	st.normalize()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func (s *fileStore) Close() error { return nil }
