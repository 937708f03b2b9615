package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/Hara602/inputSentry/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "events.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newEvent(id string, dev model.Device, kind model.Kind, at time.Time) model.Event {
	payload, _ := json.Marshal(map[string]any{"code": 30})
	return model.Event{
		ID:       id,
		DeviceID: dev.ID,
		Device:   dev,
		Wall:     at,
		Mono:     at.Sub(t0),
		Kind:     kind,
		Payload:  payload,
	}
}

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestMigrateFreshDatabase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)
	assert.Equal(t, len(migrations), countRows(t, s, `SELECT COUNT(*) FROM schema_migrations`))

	// running again is a no-op
	require.NoError(t, s.Migrate(ctx))
	assert.Equal(t, len(migrations), countRows(t, s, `SELECT COUNT(*) FROM schema_migrations`))
}

func TestMigrateForwardFromV1(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, s.apply(ctx, migrations[0]))
	_, err = s.db.Exec(`INSERT INTO devices(id, platform_id, name, first_seen, last_seen) VALUES ('d1', 'dev-A', 'Keyboard', ?, ?)`,
		t0.UnixNano(), t0.UnixNano())
	require.NoError(t, err)

	require.NoError(t, s.Migrate(ctx))
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	devices, err := s.LoadDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "d1", devices[0].ID)
	assert.Equal(t, model.Capabilities(0), devices[0].Capabilities)
	assert.True(t, t0.Equal(devices[0].FirstSeen))
}

func TestMigrateRejectsFutureSchema(t *testing.T) {
	s := openTestStore(t)
	_, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, LatestVersion()+7)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	require.NoError(t, os.WriteFile(path, png, 0o644))

	_, err := Open(path, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNotDatabase)
}

func TestCommitBatchIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	reg := registry.New()
	dev, _ := reg.Connect(model.DeviceInfo{PlatformID: "dev-A", Name: "Keyboard", Capabilities: model.CapKeyboard}, t0)

	var batch model.Batch
	for i := range 5 {
		batch = append(batch, newEvent(fmt.Sprintf("ev-%d", i), dev, model.KindKeyPress, t0.Add(time.Duration(i)*time.Millisecond)))
	}

	n, err := s.CommitBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = s.CommitBatch(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 5, countRows(t, s, `SELECT COUNT(*) FROM events`))
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM devices`))
}

func TestEventsRequireExistingDevice(t *testing.T) {
	s := openTestStore(t)
	_, err := s.db.Exec(`INSERT INTO events(id, device_id, ts_wall, ts_mono, kind, payload) VALUES ('orphan', 'nope', 0, 0, 'KeyPress', '{}')`)
	require.Error(t, err)

	assert.Zero(t, countRows(t, s, `SELECT COUNT(*) FROM events e LEFT JOIN devices d ON d.id = e.device_id WHERE d.id IS NULL`))
}

func TestHotplugReconnectKeepsDeviceRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	reg := registry.New()
	info := model.DeviceInfo{PlatformID: "dev-A", Name: "USB Keyboard", Capabilities: model.CapKeyboard}

	dev, _ := reg.Connect(info, t0)
	batch := model.Batch{newEvent("connect", dev, model.KindDeviceConnect, t0)}
	for i, kind := range []model.Kind{model.KindKeyPress, model.KindKeyRelease, model.KindMouseMove} {
		d, at := reg.Touch("dev-A", t0.Add(time.Duration(i+1)*time.Second))
		batch = append(batch, newEvent(fmt.Sprintf("input-%d", i), d, kind, at))
	}
	offAt := t0.Add(10 * time.Second)
	retired, ok := reg.Retire("dev-A", offAt)
	require.True(t, ok)
	batch = append(batch, newEvent("disconnect", retired, model.KindDeviceDisconnect, offAt))

	_, err := s.CommitBatch(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM devices`))
	assert.Equal(t, 5, countRows(t, s, `SELECT COUNT(*) FROM events WHERE device_id = ?`, dev.ID))
	var retiredAt int64
	require.NoError(t, s.db.QueryRow(`SELECT retired_at FROM devices WHERE platform_id = 'dev-A'`).Scan(&retiredAt))
	assert.Equal(t, offAt.UnixNano(), retiredAt)

	// reconnect from a fresh process: registry seeded from the store
	devices, err := s.LoadDevices(ctx)
	require.NoError(t, err)
	reg2 := registry.New()
	reg2.Seed(devices)
	back, state := reg2.Connect(info, t0.Add(time.Minute))
	assert.Equal(t, registry.StateReactivated, state)
	assert.Equal(t, dev.ID, back.ID)

	_, err = s.CommitBatch(ctx, model.Batch{newEvent("reconnect", back, model.KindDeviceConnect, t0.Add(time.Minute))})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM devices`))
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM devices WHERE id = ? AND retired_at IS NULL`, dev.ID))
}

func TestDeviceUpsertKeepsNewestSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dev := model.Device{ID: "d1", PlatformID: "dev-A", Name: "new name", FirstSeen: t0, LastSeen: t0.Add(time.Hour)}
	_, err := s.CommitBatch(ctx, model.Batch{newEvent("a", dev, model.KindKeyPress, t0.Add(time.Hour))})
	require.NoError(t, err)

	stale := dev
	stale.Name = "old name"
	stale.LastSeen = t0
	_, err = s.CommitBatch(ctx, model.Batch{newEvent("b", stale, model.KindKeyPress, t0)})
	require.NoError(t, err)

	devices, err := s.LoadDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "new name", devices[0].Name)
	assert.True(t, t0.Add(time.Hour).Equal(devices[0].LastSeen))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))
	assert.False(t, IsTransient(classify("op", fmt.Errorf("constraint failed"))))
	assert.True(t, IsTransient(classify("op", context.DeadlineExceeded)))

	wrapped := classify("outer", &StorageError{Op: "inner", Transient: true, Err: fmt.Errorf("locked")})
	assert.True(t, IsTransient(wrapped))
	assert.Contains(t, wrapped.Error(), "inner")
}
