// Package db persists build records, release metadata, blacklist flags,
// resource-limit overrides and process-wide configuration in SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
)

// DB is the SQLite-backed build database.
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory database.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, derrors.DatabaseError("open sqlite database", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{db: sqlDB}
	if err := d.initialize(); err != nil {
		_ = sqlDB.Close() // Best effort cleanup on initialization error
		return nil, derrors.DatabaseError("initialize schema", err)
	}
	return d, nil
}

func (d *DB) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		downloads INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS owners (
		package_id INTEGER NOT NULL REFERENCES packages(id),
		login TEXT NOT NULL,
		name TEXT,
		avatar TEXT,
		PRIMARY KEY (package_id, login)
	);
	CREATE TABLE IF NOT EXISTS releases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package_id INTEGER NOT NULL REFERENCES packages(id),
		version TEXT NOT NULL,
		description TEXT,
		license TEXT,
		repository TEXT,
		keywords TEXT,
		readme_html TEXT,
		dependencies TEXT,
		is_library INTEGER NOT NULL,
		default_target TEXT,
		doc_targets TEXT,
		has_docs INTEGER NOT NULL,
		has_examples INTEGER NOT NULL,
		build_status INTEGER NOT NULL,
		files TEXT,
		compression TEXT,
		release_time INTEGER,
		yanked INTEGER NOT NULL DEFAULT 0,
		downloads INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		UNIQUE (package_id, version)
	);
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		release_id INTEGER NOT NULL REFERENCES releases(id),
		build_status INTEGER NOT NULL,
		toolchain_version TEXT NOT NULL,
		builder_version TEXT NOT NULL,
		build_log TEXT,
		build_time INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_release ON builds(release_id);
	CREATE TABLE IF NOT EXISTS doc_coverage (
		release_id INTEGER PRIMARY KEY REFERENCES releases(id),
		total_items INTEGER NOT NULL,
		documented_items INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS config (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS blacklisted_packages (
		name TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sandbox_overrides (
		package TEXT PRIMARY KEY,
		max_memory_bytes INTEGER,
		timeout_seconds INTEGER,
		max_targets INTEGER
	);
	`
	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// IsBlacklisted reports whether builds of name are disabled.
func (d *DB) IsBlacklisted(ctx context.Context, name string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blacklisted_packages WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, derrors.DatabaseError("query blacklist", err)
	}
	return n > 0, nil
}

// AddToBlacklist disables builds of name.
func (d *DB) AddToBlacklist(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO blacklisted_packages (name, created_at) VALUES (?, ?)", name, time.Now().Unix())
	if err != nil {
		return derrors.DatabaseError("insert blacklist", err)
	}
	return nil
}

// RemoveFromBlacklist re-enables builds of name.
func (d *DB) RemoveFromBlacklist(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.ExecContext(ctx, "DELETE FROM blacklisted_packages WHERE name = ?", name); err != nil {
		return derrors.DatabaseError("delete blacklist", err)
	}
	return nil
}

// Blacklist returns every blacklisted package name in order.
func (d *DB) Blacklist(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT name FROM blacklisted_packages ORDER BY name")
	if err != nil {
		return nil, derrors.DatabaseError("query blacklist", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, derrors.DatabaseError("scan blacklist", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, derrors.DatabaseError("iterate blacklist", err)
	}
	return names, nil
}

// LimitsFor returns the default limits with any stored overrides for name applied.
func (d *DB) LimitsFor(ctx context.Context, name string) (limits.Limits, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var memory, timeout, targets sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		"SELECT max_memory_bytes, timeout_seconds, max_targets FROM sandbox_overrides WHERE package = ?", name,
	).Scan(&memory, &timeout, &targets)
	if errors.Is(err, sql.ErrNoRows) {
		return limits.Default(), nil
	}
	if err != nil {
		return limits.Limits{}, derrors.DatabaseError("query sandbox overrides", err)
	}

	var o limits.Overrides
	if memory.Valid {
		m := uint64(memory.Int64) // #nosec G115 -- stored values are non-negative
		o.Memory = &m
	}
	if timeout.Valid {
		t := time.Duration(timeout.Int64) * time.Second
		o.Timeout = &t
	}
	if targets.Valid {
		n := int(targets.Int64)
		o.Targets = &n
	}
	return limits.Default().Apply(o), nil
}

// SetLimitOverrides stores per-package overrides. Nil fields keep the default.
func (d *DB) SetLimitOverrides(ctx context.Context, name string, o limits.Overrides) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var memory, timeout, targets sql.NullInt64
	if o.Memory != nil {
		memory = sql.NullInt64{Int64: int64(*o.Memory), Valid: true} // #nosec G115
	}
	if o.Timeout != nil {
		timeout = sql.NullInt64{Int64: int64(o.Timeout.Seconds()), Valid: true}
	}
	if o.Targets != nil {
		targets = sql.NullInt64{Int64: int64(*o.Targets), Valid: true}
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sandbox_overrides (package, max_memory_bytes, timeout_seconds, max_targets)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(package) DO UPDATE SET
			max_memory_bytes = excluded.max_memory_bytes,
			timeout_seconds = excluded.timeout_seconds,
			max_targets = excluded.max_targets`,
		name, memory, timeout, targets)
	if err != nil {
		return derrors.DatabaseError("upsert sandbox overrides", err)
	}
	return nil
}

// IsReleaseBuilt reports whether a release of name at version has been recorded.
func (d *DB) IsReleaseBuilt(ctx context.Context, name, version string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM releases r JOIN packages p ON p.id = r.package_id
		WHERE p.name = ? AND r.version = ?`, name, version).Scan(&n)
	if err != nil {
		return false, derrors.DatabaseError("query release", err)
	}
	return n > 0, nil
}

// UpsertConfig stores value as JSON under key.
func (d *DB) UpsertConfig(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return derrors.DatabaseError("marshal config "+key, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx,
		"INSERT INTO config (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value",
		key, string(data))
	if err != nil {
		return derrors.DatabaseError("upsert config "+key, err)
	}
	return nil
}

// GetConfig decodes the value stored under key into out. It reports false when the key is unset.
func (d *DB) GetConfig(ctx context.Context, key string, out any) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var raw string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM config WHERE name = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, derrors.DatabaseError("query config "+key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, derrors.DatabaseError("decode config "+key, err)
	}
	return true, nil
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
