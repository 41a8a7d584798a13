// Package sqlite provides a SQLite-backed settings store.
package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	_ "modernc.org/sqlite"

	"github.com/luno/rolesbot/settings"
	"github.com/luno/rolesbot/settings/sqlite/migrations"
)

// Store persists server settings in SQLite.
type Store struct {
	db *sql.DB
}

var _ settings.Store = (*Store)(nil)

// Open opens a SQLite settings store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, serverID string) (settings.ServerSettings, bool, error) {
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM server_settings WHERE server_id = ?`, serverID,
	).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.ServerSettings{}, false, nil
	} else if err != nil {
		return settings.ServerSettings{}, false, errors.Wrap(err, "select server settings", j.KV("server", serverID))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role_id FROM server_auto_roles WHERE server_id = ? ORDER BY position`, serverID)
	if err != nil {
		return settings.ServerSettings{}, false, errors.Wrap(err, "select auto roles", j.KV("server", serverID))
	}
	defer rows.Close()

	ret := settings.ServerSettings{ServerID: serverID}
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return settings.ServerSettings{}, false, errors.Wrap(err, "scan auto role")
		}
		ret.AutoRoles = append(ret.AutoRoles, roleID)
	}
	if err := rows.Err(); err != nil {
		return settings.ServerSettings{}, false, errors.Wrap(err, "iterate auto roles")
	}
	return ret, true, nil
}

func (s *Store) Save(ctx context.Context, ss settings.ServerSettings) error {
	if ss.ServerID == "" {
		return errors.New("server id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO server_settings (server_id, updated_at) VALUES (?, ?)
		 ON CONFLICT (server_id) DO UPDATE SET updated_at = excluded.updated_at`,
		ss.ServerID, time.Now().UTC().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "upsert server settings", j.KV("server", ss.ServerID))
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM server_auto_roles WHERE server_id = ?`, ss.ServerID)
	if err != nil {
		return errors.Wrap(err, "clear auto roles", j.KV("server", ss.ServerID))
	}
	for i, roleID := range ss.AutoRoles {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO server_auto_roles (server_id, position, role_id) VALUES (?, ?, ?)`,
			ss.ServerID, i, roleID)
		if err != nil {
			return errors.Wrap(err, "insert auto role", j.MKV{"server": ss.ServerID, "role": roleID})
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit settings", j.KV("server", ss.ServerID))
	}
	return nil
}

const migrationTable = "schema_migrations"

// applyMigrations runs each embedded .sql file once, in name order.
func applyMigrations(db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return errors.Wrap(err, "read migrations dir")
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return errors.Wrap(err, "ensure migration table")
	}

	for _, file := range files {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&n)
		if err != nil {
			return errors.Wrap(err, "check migration", j.KV("file", file))
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return errors.Wrap(err, "read migration", j.KV("file", file))
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrap(err, "begin migration", j.KV("file", file))
		}
		if _, err := tx.Exec(upMigration(string(content))); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "exec migration", j.KV("file", file))
		}
		_, err = tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli())
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "record migration", j.KV("file", file))
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "commit migration", j.KV("file", file))
		}
	}
	return nil
}

// upMigration returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upMigration(content string) string {
	if i := strings.Index(content, "-- +migrate Up"); i >= 0 {
		content = content[i+len("-- +migrate Up"):]
	}
	if i := strings.Index(content, "-- +migrate Down"); i >= 0 {
		content = content[:i]
	}
	return content
}
