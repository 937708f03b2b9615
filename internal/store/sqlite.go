// Package store persists canonical events and devices to SQLite and runs the
// batching writer that drains the hand-off channel.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Hara602/inputSentry/internal/analysis"
	"github.com/Hara602/inputSentry/internal/model"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const busyTimeout = 5 * time.Second

type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open 打开 sqlite 数据库；已存在但不是 sqlite 的文件直接拒绝
func Open(path string, logger *zap.Logger) (*Store, error) {
	check, err := analysis.InspectStorage(path)
	if err != nil {
		return nil, err
	}
	if !check.Usable() {
		return nil, fmt.Errorf("%w: %s: %s", ErrNotDatabase, path, check.Message)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer: sqlite serialises writes anyway, a single conn keeps pragmas consistent
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	logger.Debug("storage opened", zap.String("path", path), zap.String("detected", check.RealExt))
	return &Store{db: db, path: path, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// LoadDevices returns every persisted device for seeding the registry.
func (s *Store) LoadDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform_id, name, capabilities, first_seen, last_seen, retired_at FROM devices ORDER BY first_seen`)
	if err != nil {
		return nil, classify("load devices", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var (
			d                   model.Device
			caps                int64
			firstSeen, lastSeen int64
			retiredAt           sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.PlatformID, &d.Name, &caps, &firstSeen, &lastSeen, &retiredAt); err != nil {
			return nil, classify("scan device", err)
		}
		d.Capabilities = model.Capabilities(caps)
		d.FirstSeen = fromNanos(firstSeen)
		d.LastSeen = fromNanos(lastSeen)
		if retiredAt.Valid {
			t := fromNanos(retiredAt.Int64)
			d.RetiredAt = &t
		}
		out = append(out, d)
	}
	return out, classify("iterate devices", rows.Err())
}

const upsertDevice = `INSERT INTO devices(id, platform_id, name, capabilities, first_seen, last_seen, retired_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(platform_id) DO UPDATE SET
	name = excluded.name,
	capabilities = excluded.capabilities,
	last_seen = excluded.last_seen,
	retired_at = excluded.retired_at
WHERE excluded.last_seen >= devices.last_seen`

// 主键冲突直接忽略，重放同一批次不会产生重复行
const insertEvent = `INSERT OR IGNORE INTO events(id, device_id, ts_wall, ts_mono, kind, payload)
VALUES (?, ?, ?, ?, ?, ?)`

// CommitBatch writes the batch in one transaction: device rows first, then
// events. It returns the number of event rows actually inserted.
func (s *Store) CommitBatch(ctx context.Context, batch model.Batch) (n int, err error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin batch", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// newest snapshot per device wins
	latest := make(map[string]model.Device)
	var order []string
	for _, ev := range batch {
		if _, seen := latest[ev.Device.PlatformID]; !seen {
			order = append(order, ev.Device.PlatformID)
		}
		latest[ev.Device.PlatformID] = ev.Device
	}

	devStmt, err := tx.PrepareContext(ctx, upsertDevice)
	if err != nil {
		return 0, classify("prepare device upsert", err)
	}
	defer devStmt.Close()
	for _, pid := range order {
		d := latest[pid]
		var retired sql.NullInt64
		if d.RetiredAt != nil {
			retired = sql.NullInt64{Int64: nanos(*d.RetiredAt), Valid: true}
		}
		if _, err = devStmt.ExecContext(ctx, d.ID, d.PlatformID, d.Name, int64(d.Capabilities),
			nanos(d.FirstSeen), nanos(d.LastSeen), retired); err != nil {
			return 0, classify("upsert device "+pid, err)
		}
	}

	evStmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return 0, classify("prepare event insert", err)
	}
	defer evStmt.Close()
	for _, ev := range batch {
		res, err := evStmt.ExecContext(ctx, ev.ID, ev.DeviceID, nanos(ev.Wall), int64(ev.Mono), string(ev.Kind), string(ev.Payload))
		if err != nil {
			return 0, classify("insert event "+ev.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			n++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, classify("commit batch", err)
	}
	return n, nil
}
