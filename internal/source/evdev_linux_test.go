//go:build linux

package source

import (
	"testing"
	"time"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

// pipeSource wires an evdevSource to the read end of a non-blocking pipe.
func pipeSource(t *testing.T) (*evdevSource, int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	src := newEvdevSource(model.DeviceInfo{
		PlatformID:   "by-id:usb-Test_Keyboard-event-kbd",
		Name:         "Test Keyboard",
		Path:         "/dev/input/event9",
		Capabilities: model.CapKeyboard,
	}, zaptest.NewLogger(t))
	src.fd = p[0]
	t.Cleanup(func() { src.Close() })
	return src, p[1]
}

func TestEvdevSourceLifecycle(t *testing.T) {
	src, w := pipeSource(t)

	raw, err := src.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, model.RawConnect, raw.Kind)
	require.NotNil(t, raw.Info)
	assert.Equal(t, "Test Keyboard", raw.Info.Name)

	_, err = src.ReadRaw()
	assert.ErrorIs(t, err, ErrWouldBlock)

	_, err = unix.Write(w, encode(key(2*time.Second, 30, 1), syn(2*time.Second), key(3*time.Second, 30, 0), syn(3*time.Second)))
	require.NoError(t, err)

	raw, err = src.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, model.RawInput, raw.Kind)
	assert.Equal(t, "by-id:usb-Test_Keyboard-event-kbd", raw.PlatformID)
	assert.Equal(t, 2*time.Second, raw.DeviceTime)
	assert.Equal(t, int32(1), raw.Frame[0].Value)

	raw, err = src.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, int32(0), raw.Frame[0].Value)

	_, err = src.ReadRaw()
	assert.ErrorIs(t, err, ErrWouldBlock)

	// writer gone reads as end of file, like a removed device
	require.NoError(t, unix.Close(w))
	raw, err = src.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, model.RawDisconnect, raw.Kind)

	_, err = src.ReadRaw()
	assert.ErrorIs(t, err, ErrSourceGone)
}

func TestEvdevSourcePartialFrameWaits(t *testing.T) {
	src, w := pipeSource(t)
	defer unix.Close(w)
	_, err := src.ReadRaw()
	require.NoError(t, err)

	_, err = unix.Write(w, encode(key(time.Second, 30, 1)))
	require.NoError(t, err)
	_, err = src.ReadRaw()
	assert.ErrorIs(t, err, ErrWouldBlock)

	_, err = unix.Write(w, encode(syn(time.Second)))
	require.NoError(t, err)
	raw, err := src.ReadRaw()
	require.NoError(t, err)
	assert.Len(t, raw.Frame, 1)
}

func TestEvdevOpenFailureIsPerDevice(t *testing.T) {
	src := newEvdevSource(model.DeviceInfo{Path: t.TempDir() + "/missing"}, zaptest.NewLogger(t))
	err := src.Open()
	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.ErrorIs(t, err, unix.ENOENT)
}

func TestNewSkipsUnknownBackends(t *testing.T) {
	backends, errs := New([]string{"evdev", "wayland"}, zaptest.NewLogger(t), nil)
	require.Len(t, backends, 1)
	assert.Equal(t, "evdev", backends[0].Name())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownBackend)
	assert.Contains(t, errs[0].Error(), "available: evdev, hook")
}
