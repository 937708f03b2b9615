package model

import "strconv"

// InputEvent 对应内核 struct input_event 去掉时间戳后的部分
// 时间戳在一帧内相同，存放在 RawEvent.DeviceTime
/*
struct input_event {
	struct timeval time;
	__u16 type;
	__u16 code;
	__s32 value;
};
*/
type InputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

// LongSize is sizeof(long) in the kernel ABI; Go's int has the same width on every linux port.
const LongSize = strconv.IntSize / 8

// InputEventSize is sizeof(struct input_event): two longs of timeval, then type, code and value.
// 24 bytes on 64-bit targets, 16 on 386 and arm.
const InputEventSize = 2*LongSize + 8

// evdev event types
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvRel uint16 = 0x02
	EvAbs uint16 = 0x03
	EvMsc uint16 = 0x04
	EvLed uint16 = 0x11
)

// EV_SYN codes
const (
	SynReport  uint16 = 0
	SynDropped uint16 = 3
)

// EV_REL codes
const (
	RelX           uint16 = 0x00
	RelY           uint16 = 0x01
	RelHWheel      uint16 = 0x06
	RelWheel       uint16 = 0x08
	RelWheelHiRes  uint16 = 0x0b
	RelHWheelHiRes uint16 = 0x0c
)

// EV_ABS codes
const (
	AbsX uint16 = 0x00
	AbsY uint16 = 0x01
)

// button code range; everything below BtnMisc in EV_KEY is a keyboard key
const (
	BtnMisc    uint16 = 0x100
	BtnMouse   uint16 = 0x110
	BtnLeft    uint16 = 0x110
	BtnRight   uint16 = 0x111
	BtnMiddle  uint16 = 0x112
	BtnSide    uint16 = 0x113
	BtnExtra   uint16 = 0x114
	BtnForward uint16 = 0x115
	BtnBack    uint16 = 0x116
	BtnTask    uint16 = 0x117
	BtnTouch   uint16 = 0x14a
	BtnDigi    uint16 = 0x140
	KeyOK      uint16 = 0x160
)

// HiResPerDetent is the REL_WHEEL_HI_RES value of one wheel notch.
const HiResPerDetent = 120
