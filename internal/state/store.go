package state

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "modelwatch/pkg/logx"
)

// Config configures persistence.
//
// Driver values:
//   - "file" (or empty): single atomic JSON document
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PersistenceError reports an unrecoverable write failure (e.g. disk full).
// Callers log it loudly and keep serving from in-memory state; the write is
// retried on the next cycle.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return "state: persist " + e.Path + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the persistence backend for the state aggregate.
//
// Load never fails: a missing or corrupt document logs a warning and yields
// an empty state, so a fresh install and a wiped file behave identically.
type Store interface {
	Load(ctx context.Context) *State
	Save(ctx context.Context, st *State) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("state path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
}
