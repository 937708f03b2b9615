package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind 规范事件类型
type Kind string

const (
	KindKeyPress         Kind = "KeyPress"
	KindKeyRelease       Kind = "KeyRelease"
	KindMouseMove        Kind = "MouseMove"
	KindMouseButton      Kind = "MouseButton"
	KindMouseScroll      Kind = "MouseScroll"
	KindDeviceConnect    Kind = "DeviceConnect"
	KindDeviceDisconnect Kind = "DeviceDisconnect"
)

// Valid reports whether k is one of the canonical kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindKeyPress, KindKeyRelease, KindMouseMove, KindMouseButton,
		KindMouseScroll, KindDeviceConnect, KindDeviceDisconnect:
		return true
	}
	return false
}

// Event is a canonical, immutable input occurrence.
// Device is a read-only snapshot taken by the dispatcher when the event was built;
// the store writer persists it next to the event instead of touching the registry.
type Event struct {
	ID       string          `json:"id"`
	DeviceID string          `json:"device_id"`
	Device   Device          `json:"device"`
	Wall     time.Time       `json:"ts_wall"`
	Mono     time.Duration   `json:"ts_mono"`
	Kind     Kind            `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// Batch 一次事务提交的事件序列，只存在于内存
type Batch []Event

// KeyPayload KeyPress / KeyRelease
type KeyPayload struct {
	Code      uint16    `json:"code"`
	Name      string    `json:"name"`
	Char      string    `json:"char,omitempty"`
	Repeat    bool      `json:"repeat,omitempty"`
	Modifiers Modifiers `json:"modifiers,omitempty"`
}

// MovePayload MouseMove. X/Y are set only for absolute pointers.
type MovePayload struct {
	DX int32    `json:"dx"`
	DY int32    `json:"dy"`
	X  *float64 `json:"x,omitempty"`
	Y  *float64 `json:"y,omitempty"`
}

// ButtonPayload MouseButton
type ButtonPayload struct {
	Code      uint16    `json:"code"`
	Button    string    `json:"button"`
	Pressed   bool      `json:"pressed"`
	Modifiers Modifiers `json:"modifiers,omitempty"`
}

const (
	AxisVertical   = "vertical"
	AxisHorizontal = "horizontal"
)

// ScrollPayload MouseScroll, one axis per event
type ScrollPayload struct {
	Axis    string  `json:"axis"`
	Delta   float64 `json:"delta"`
	HighRes bool    `json:"high_res,omitempty"`
}

// DevicePayload DeviceConnect / DeviceDisconnect
type DevicePayload struct {
	Name         string       `json:"name"`
	Path         string       `json:"path,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// Encode marshals a kind-specific payload.
func Encode(payload any) (json.RawMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
