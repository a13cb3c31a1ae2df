package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"modelwatch/internal/catalog"
	logx "modelwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore mirrors the file driver's whole-aggregate semantics: Save
// replaces all rows in one transaction, Load reads everything back.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) *State {
	st := NewState()

	rows, err := s.db.QueryContext(ctx, `SELECT source, id, name FROM snapshots ORDER BY source, position`)
	if err != nil {
		s.log.Warn("state db unreadable; starting empty", logx.Err(err))
		return NewState()
	}
	for rows.Next() {
		var source string
		var m catalog.Model
		if err := rows.Scan(&source, &m.ID, &m.Name); err != nil {
			_ = rows.Close()
			s.log.Warn("state db row corrupt; starting empty", logx.Err(err))
			return NewState()
		}
		snap := st.Snapshots[source]
		snap.Models = append(snap.Models, m)
		st.Snapshots[source] = snap
	}
	if err := rows.Close(); err != nil {
		s.log.Warn("state db read failed; starting empty", logx.Err(err))
		return NewState()
	}

	rows, err = s.db.QueryContext(ctx, `SELECT chat_id FROM chats ORDER BY chat_id`)
	if err != nil {
		s.log.Warn("state db unreadable; starting empty", logx.Err(err))
		return NewState()
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			s.log.Warn("state db row corrupt; starting empty", logx.Err(err))
			return NewState()
		}
		st.Chats = append(st.Chats, id)
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT key, text FROM tags`)
	if err != nil {
		s.log.Warn("state db unreadable; starting empty", logx.Err(err))
		return NewState()
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			s.log.Warn("state db row corrupt; starting empty", logx.Err(err))
			return NewState()
		}
		st.Tags[k] = v
	}
	_ = rows.Close()

	st.normalize()
	return st
}

func (s *sqliteStore) Save(ctx context.Context, st *State) error {
	st.normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Path: "sqlite", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"snapshots", "chats", "tags"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return &PersistenceError{Path: "sqlite", Err: err}
		}
	}
	for source, snap := range st.Snapshots {
		for pos, m := range snap.Models {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO snapshots(source, position, id, name) VALUES(?,?,?,?)`,
				source, pos, m.ID, m.Name,
			); err != nil {
				return &PersistenceError{Path: "sqlite", Err: err}
			}
		}
	}
	for _, id := range st.Chats {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chats(chat_id) VALUES(?)`, id); err != nil {
			return &PersistenceError{Path: "sqlite", Err: err}
		}
	}
	for k, v := range st.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags(key, text) VALUES(?,?)`, k, v); err != nil {
			return &PersistenceError{Path: "sqlite", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Path: "sqlite", Err: err}
	}
	return nil
}
