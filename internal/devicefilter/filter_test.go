package devicefilter

import (
	"path"
	"testing"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreByPlatformIDAndName(t *testing.T) {
	f, err := New([]string{"by-id:usb-Yubico*", "*Power Button*", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())

	cases := []struct {
		info    model.DeviceInfo
		ignored bool
		rule    string
	}{
		{model.DeviceInfo{PlatformID: "by-id:usb-Yubico_YubiKey-event-kbd", Name: "Yubico YubiKey"}, true, "by-id:usb-Yubico*"},
		{model.DeviceInfo{PlatformID: "evdev:0019:0000:0001:Power Button", Name: "Power Button"}, true, "*Power Button*"},
		{model.DeviceInfo{PlatformID: "by-id:usb-Logitech_USB_Receiver-event-mouse", Name: "Logitech USB Receiver"}, false, ""},
		{model.DeviceInfo{}, false, ""},
	}
	for _, c := range cases {
		ignored, rule := f.IsIgnored(c.info)
		assert.Equal(t, c.ignored, ignored, c.info.PlatformID)
		assert.Equal(t, c.rule, rule, c.info.PlatformID)
	}
}

func TestBadPatternFailsEarly(t *testing.T) {
	_, err := New([]string{"[unterminated"})
	require.Error(t, err)
	assert.ErrorIs(t, err, path.ErrBadPattern)
}

func TestNilFilterIgnoresNothing(t *testing.T) {
	var f *Filter
	ignored, _ := f.IsIgnored(model.DeviceInfo{PlatformID: "x", Name: "x"})
	assert.False(t, ignored)
	assert.Equal(t, 0, f.Len())
}
