package analysis

import (
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Hara602/inputSentry/internal/model"
)

// Bitmap 内核 capabilities 文件里的位图
// 格式: 十六进制 long 按空格分隔，最高位的 long 在最前面
type Bitmap []uint64

// ParseBitmap parses a sysfs capability file, e.g. "120013" or "1 0 0 fffffffe".
func ParseBitmap(s string) Bitmap {
	fields := strings.Fields(s)
	out := make(Bitmap, 0, len(fields))
	for i := len(fields) - 1; i >= 0; i-- {
		v, err := strconv.ParseUint(fields[i], 16, 64)
		if err != nil {
			v = 0
		}
		out = append(out, v)
	}
	return out
}

func (b Bitmap) Has(bit uint16) bool {
	word := int(bit) / bits.UintSize
	if word >= len(b) {
		return false
	}
	return b[word]&(1<<(uint(bit)%bits.UintSize)) != 0
}

func (b Bitmap) Empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

// ClassifyInput 读取 /sys/class/input/eventN/device/capabilities 判定设备能力
// 键盘: 有 EV_KEY 且包含常用字母键; 指针: REL_X/REL_Y + BTN_LEFT; 触摸: ABS_X/ABS_Y + BTN_TOUCH
func ClassifyInput(sysPath string) model.Capabilities {
	capDir := filepath.Join(sysPath, "capabilities")
	ev := ParseBitmap(readTrim(filepath.Join(capDir, "ev")))
	key := ParseBitmap(readTrim(filepath.Join(capDir, "key")))
	rel := ParseBitmap(readTrim(filepath.Join(capDir, "rel")))
	abs := ParseBitmap(readTrim(filepath.Join(capDir, "abs")))
	return Classify(ev, key, rel, abs)
}

// Classify is ClassifyInput on already parsed bitmaps.
func Classify(ev, key, rel, abs Bitmap) model.Capabilities {
	var caps model.Capabilities

	if ev.Has(model.EvKey) && key.Has(30) && key.Has(44) && key.Has(57) { // KEY_A KEY_Z KEY_SPACE
		caps |= model.CapKeyboard
	}
	if ev.Has(model.EvRel) && rel.Has(model.RelX) && rel.Has(model.RelY) && key.Has(model.BtnLeft) {
		caps |= model.CapPointer
	}
	if ev.Has(model.EvAbs) && abs.Has(model.AbsX) && abs.Has(model.AbsY) {
		switch {
		case key.Has(model.BtnTouch) && key.Has(0x145): // BTN_TOOL_FINGER: touchpad
			caps |= model.CapTouch | model.CapPointer
		case key.Has(model.BtnTouch):
			caps |= model.CapTouch
		case key.Has(model.BtnLeft):
			caps |= model.CapPointer
		}
	}
	if caps == 0 && (!key.Empty() || !rel.Empty() || !abs.Empty()) {
		caps = model.CapOther
	}
	return caps
}

func readTrim(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
