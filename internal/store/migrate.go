package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations 只能追加，不能修改已发布的版本
var migrations = []migration{
	{
		version: 1,
		name:    "devices and events",
		stmts: []string{
			`CREATE TABLE devices (
				id          TEXT PRIMARY KEY,
				platform_id TEXT NOT NULL UNIQUE,
				name        TEXT NOT NULL DEFAULT '',
				first_seen  INTEGER NOT NULL,
				last_seen   INTEGER NOT NULL,
				retired_at  INTEGER
			)`,
			`CREATE TABLE events (
				id        TEXT PRIMARY KEY,
				device_id TEXT NOT NULL REFERENCES devices(id),
				ts_wall   INTEGER NOT NULL,
				ts_mono   INTEGER NOT NULL,
				kind      TEXT NOT NULL,
				payload   TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "device capabilities and per-device time index",
		stmts: []string{
			`ALTER TABLE devices ADD COLUMN capabilities INTEGER NOT NULL DEFAULT 0`,
			`CREATE INDEX events_device_time ON events(device_id, ts_wall)`,
		},
	},
}

// LatestVersion is the newest schema this binary can write.
func LatestVersion() int { return migrations[len(migrations)-1].version }

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, classify("create schema_migrations", err)
	}
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, classify("read schema version", err)
	}
	return v, nil
}

// Migrate brings the schema forward. A version newer than any known migration
// is refused with ErrSchemaTooNew.
func (s *Store) Migrate(ctx context.Context) error {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > LatestVersion() {
		return fmt.Errorf("%w: database at v%d, binary knows up to v%d", ErrSchemaTooNew, current, LatestVersion())
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		s.logger.Info("schema migrated", zap.Int("version", m.version), zap.String("name", m.name))
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin migration", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for _, stmt := range m.stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.version, m.name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", m.version, err)
	}
	return nil
}
