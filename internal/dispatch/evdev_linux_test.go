//go:build linux

package dispatch

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/Hara602/inputSentry/internal/source"
	"github.com/Hara602/inputSentry/internal/sysutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

func putLong(b []byte, v int64) {
	if model.LongSize == 4 {
		binary.NativeEndian.PutUint32(b, uint32(v))
		return
	}
	binary.NativeEndian.PutUint64(b, uint64(v))
}

// keyFrames encodes n frames of one key record plus SYN_REPORT, alternating press and release.
func keyFrames(n int) []byte {
	b := make([]byte, 0, 2*n*model.InputEventSize)
	rec := func(sec int64, typ, code uint16, value int32) {
		o := make([]byte, model.InputEventSize)
		putLong(o, sec)
		body := o[2*model.LongSize:]
		binary.NativeEndian.PutUint16(body[0:2], typ)
		binary.NativeEndian.PutUint16(body[2:4], code)
		binary.NativeEndian.PutUint32(body[4:8], uint32(value))
		b = append(b, o...)
	}
	for i := range n {
		sec := int64(200 + i)
		rec(sec, model.EvKey, 30, int32(1-i%2))
		rec(sec, model.EvSyn, model.SynReport, 0)
	}
	return b
}

// fifoDevice exposes a FIFO as an evdev node with a minimal sysfs entry and
// returns the evdev backend plus the FIFO's write end.
func fifoDevice(t *testing.T) (source.Backend, string, int) {
	t.Helper()
	root := t.TempDir()
	devDir := filepath.Join(root, "dev", "input")
	sysDev := filepath.Join(root, "sys", "class", "input", "event9", "device")
	require.NoError(t, os.MkdirAll(devDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(sysDev, "id"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sysDev, "name"), []byte("FIFO Keyboard\n"), 0o644))

	oldDev, oldSys := sysutil.InputDir, sysutil.SysInput
	sysutil.InputDir, sysutil.SysInput = devDir, filepath.Join(root, "sys", "class", "input")
	t.Cleanup(func() { sysutil.InputDir, sysutil.SysInput = oldDev, oldSys })

	path := filepath.Join(devDir, "event9")
	require.NoError(t, unix.Mkfifo(path, 0o600))
	// O_RDWR keeps the FIFO from reporting end of file while the reader runs
	w, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(w) })

	backends, errs := source.New([]string{"evdev"}, zaptest.NewLogger(t), nil)
	require.Empty(t, errs)
	require.Len(t, backends, 1)
	return backends[0], path, w
}

func TestBufferedEvdevFramesAreDeliveredWithoutNewInput(t *testing.T) {
	backend, path, w := fifoDevice(t)
	_, err := unix.Write(w, keyFrames(64))
	require.NoError(t, err)

	h := newHarness(t, Config{PollTimeout: time.Hour}, 256, "block")
	src, err := backend.OpenDevice(path)
	require.NoError(t, err)
	h.d.Register(src, backend)
	h.start(context.Background())

	assert.Equal(t, model.KindDeviceConnect, h.next(t).Kind)
	for i := range 64 {
		ev := h.next(t)
		want := model.KindKeyPress
		if i%2 == 1 {
			want = model.KindKeyRelease
		}
		require.Equal(t, want, ev.Kind, "event %d", i)
	}
	h.stop(t)
}

func TestShutdownDrainsBufferedEvdevFrames(t *testing.T) {
	backend, path, w := fifoDevice(t)
	_, err := unix.Write(w, keyFrames(64))
	require.NoError(t, err)

	h := newHarness(t, Config{PollTimeout: time.Hour}, 256, "block")
	src, err := backend.OpenDevice(path)
	require.NoError(t, err)
	h.d.Register(src, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.d.Run(ctx))

	var keys int
	for _, ev := range drainAll(h.handoff) {
		if ev.Kind == model.KindKeyPress || ev.Kind == model.KindKeyRelease {
			keys++
		}
	}
	assert.Equal(t, 64, keys)
	assert.Equal(t, uint64(65), h.counters.Captured.Load())
}

func TestWakeAfterRunDoesNotTouchReusedDescriptors(t *testing.T) {
	h := newHarness(t, Config{PollTimeout: time.Hour}, 8, "block")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.d.Run(ctx))

	// likely takes over the dispatcher's closed control descriptor
	n, err := sysutil.NewNotifier()
	require.NoError(t, err)
	defer n.Close()

	h.d.Shutdown()
	late := newFakeSource(t, "late")
	h.d.Register(late, nil)

	var buf [8]byte
	_, err = unix.Read(n.Fd(), buf[:])
	assert.ErrorIs(t, err, unix.EAGAIN)
	assert.False(t, late.isClosed())
}
