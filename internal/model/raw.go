package model

import "time"

// RawKind 原始事件类型
type RawKind uint8

const (
	RawInput      RawKind = iota + 1 // evdev frame (events up to SYN_REPORT)
	RawHook                          // windowing-system hook event
	RawConnect                       // source opened a device
	RawDisconnect                    // device went away
	RawAttach                        // hot-plug: new device node appeared
	RawDetach                        // hot-plug: device node removed
)

func (k RawKind) String() string {
	switch k {
	case RawInput:
		return "input"
	case RawHook:
		return "hook"
	case RawConnect:
		return "connect"
	case RawDisconnect:
		return "disconnect"
	case RawAttach:
		return "attach"
	case RawDetach:
		return "detach"
	}
	return "unknown"
}

// Clock identifies the clock a device timestamp was taken from.
type Clock uint8

const (
	ClockMonotonic Clock = iota
	ClockRealtime
)

// RawEvent 各个 Source 产出的原始事件，由 Normalizer 转换为规范事件
type RawEvent struct {
	Kind       RawKind
	PlatformID string
	Path       string

	// DeviceTime is the device-supplied timestamp. For ClockMonotonic it is the
	// offset from the monotonic clock's zero; for ClockRealtime it is unix time.
	Clock      Clock
	DeviceTime time.Duration
	// CaptureMono is the local monotonic reading taken when the raw event was read.
	CaptureMono time.Duration

	Frame     []InputEvent
	Dropped   bool
	Hook      *HookInput
	Info      *DeviceInfo
	Modifiers Modifiers
}

// Epoch 进程启动时建立一次的参考时间点，所有设备共用
type Epoch struct {
	Wall time.Time
	Mono time.Duration
}

// WallAt maps a monotonic reading onto the wall clock.
func (e Epoch) WallAt(mono time.Duration) time.Time {
	return e.Wall.Add(mono - e.Mono)
}

// HookKind 窗口系统钩子事件类型
type HookKind uint8

const (
	HookKeyDown HookKind = iota + 1
	HookKeyHold
	HookKeyUp
	HookMouseDown
	HookMouseUp
	HookMouseMove
	HookMouseDrag
	HookMouseWheel
)

// HookInput carries a windowing-system event with names already resolved by the source.
type HookInput struct {
	Kind      HookKind
	Keycode   uint16
	Rawcode   uint16
	KeyName   string
	Keychar   string
	Button    uint16
	X, Y      int16
	Amount    uint16
	Rotation  int32
	Direction uint8
}
