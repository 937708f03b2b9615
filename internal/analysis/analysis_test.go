package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCaps(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	capDir := filepath.Join(dir, "capabilities")
	require.NoError(t, os.MkdirAll(capDir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(capDir, name), []byte(content+"\n"), 0o644))
	}
}

func TestParseBitmap(t *testing.T) {
	b := ParseBitmap("1 0")
	assert.True(t, b.Has(64))
	assert.False(t, b.Has(0))
	assert.False(t, b.Has(200))

	assert.True(t, ParseBitmap("").Empty())
	assert.True(t, ParseBitmap("120013").Has(model.EvKey))
}

func TestClassifyInput(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  model.Capabilities
	}{
		{
			name: "keyboard",
			// EV_SYN EV_KEY EV_MSC EV_LED EV_REP; keys 1..63
			files: map[string]string{"ev": "120013", "key": "ffffffffffffffff", "rel": "0", "abs": "0"},
			want:  model.CapKeyboard,
		},
		{
			name: "mouse",
			// EV_SYN EV_KEY EV_REL; BTN_LEFT..BTN_TASK (0x110-0x117), REL_X REL_Y REL_WHEEL
			files: map[string]string{"ev": "7", "key": "ff0000 0 0 0 0", "rel": "103", "abs": "0"},
			want:  model.CapPointer,
		},
		{
			name: "touchpad",
			// EV_ABS; BTN_LEFT, BTN_TOOL_FINGER, BTN_TOUCH
			files: map[string]string{"ev": "b", "key": "420 10000 0 0 0 0", "rel": "0", "abs": "3"},
			want:  model.CapTouch | model.CapPointer,
		},
		{
			name:  "power button",
			files: map[string]string{"ev": "3", "key": "10000000000000 0", "rel": "0", "abs": "0"},
			want:  model.CapOther,
		},
		{
			name:  "nothing",
			files: map[string]string{"ev": "0"},
			want:  0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeCaps(t, dir, tc.files)
			assert.Equal(t, tc.want, ClassifyInput(dir))
		})
	}
}

func TestInspectStorage(t *testing.T) {
	dir := t.TempDir()

	check, err := InspectStorage(filepath.Join(dir, "missing.db"))
	require.NoError(t, err)
	assert.False(t, check.Exists)
	assert.True(t, check.Usable())

	empty := filepath.Join(dir, "empty.db")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	check, err = InspectStorage(empty)
	require.NoError(t, err)
	assert.True(t, check.Empty)
	assert.True(t, check.Usable())

	db := filepath.Join(dir, "real.db")
	header := append([]byte("SQLite format 3\x00"), make([]byte, 84)...)
	require.NoError(t, os.WriteFile(db, header, 0o644))
	check, err = InspectStorage(db)
	require.NoError(t, err)
	assert.True(t, check.IsSQLite)
	assert.True(t, check.Usable())

	png := filepath.Join(dir, "image.db")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000000000000000"), 0o644))
	check, err = InspectStorage(png)
	require.NoError(t, err)
	assert.False(t, check.Usable())
	assert.Equal(t, "png", check.RealExt)
}
