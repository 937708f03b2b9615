// Package normalize maps raw per-source payloads to canonical events.
// It does no I/O and keeps no state between calls.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/google/uuid"
)

// NormalizationError 原始事件格式错误，事件被丢弃并计数，不向上传播
type NormalizationError struct {
	Kind   model.RawKind
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s event: %s", e.Kind, e.Reason)
}

// IsRejected reports whether err is a NormalizationError.
func IsRejected(err error) bool {
	var ne *NormalizationError
	return errors.As(err, &ne)
}

// Normalizer 纯函数式转换器
type Normalizer struct {
	epoch model.Epoch
	newID func() string
}

type Option func(*Normalizer)

// WithIDFunc replaces the event id generator.
func WithIDFunc(f func() string) Option {
	return func(n *Normalizer) { n.newID = f }
}

func New(epoch model.Epoch, opts ...Option) *Normalizer {
	n := &Normalizer{epoch: epoch, newID: newEventID}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// uuid v7 keeps ids roughly time ordered, which keeps the sqlite primary key index compact
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Epoch returns the reference point the normalizer maps device clocks through.
func (n *Normalizer) Epoch() model.Epoch { return n.epoch }

// Normalize turns one raw event into zero or more canonical events.
// The returned events have no DeviceID yet; the dispatcher binds them to a device.
func (n *Normalizer) Normalize(raw model.RawEvent) ([]model.Event, error) {
	if raw.PlatformID == "" {
		return nil, &NormalizationError{Kind: raw.Kind, Reason: "missing platform id"}
	}
	switch raw.Kind {
	case model.RawInput:
		return n.frame(raw)
	case model.RawHook:
		return n.hook(raw)
	case model.RawConnect, model.RawDisconnect:
		return n.lifecycle(raw)
	}
	return nil, &NormalizationError{Kind: raw.Kind, Reason: "unsupported raw kind"}
}

func (n *Normalizer) wallTime(raw model.RawEvent) time.Time {
	if raw.DeviceTime == 0 {
		return n.epoch.WallAt(raw.CaptureMono)
	}
	if raw.Clock == model.ClockRealtime {
		return time.Unix(0, int64(raw.DeviceTime))
	}
	return n.epoch.WallAt(raw.DeviceTime)
}

func (n *Normalizer) event(raw model.RawEvent, kind model.Kind, payload any) (model.Event, error) {
	body, err := model.Encode(payload)
	if err != nil {
		return model.Event{}, &NormalizationError{Kind: raw.Kind, Reason: err.Error()}
	}
	return model.Event{
		ID:      n.newID(),
		Wall:    n.wallTime(raw),
		Mono:    raw.CaptureMono,
		Kind:    kind,
		Payload: body,
	}, nil
}

func (n *Normalizer) lifecycle(raw model.RawEvent) ([]model.Event, error) {
	p := model.DevicePayload{Path: raw.Path}
	if raw.Info != nil {
		p.Name = raw.Info.Name
		p.Capabilities = raw.Info.Capabilities
		if p.Path == "" {
			p.Path = raw.Info.Path
		}
	}
	kind := model.KindDeviceConnect
	if raw.Kind == model.RawDisconnect {
		kind = model.KindDeviceDisconnect
	}
	ev, err := n.event(raw, kind, p)
	if err != nil {
		return nil, err
	}
	return []model.Event{ev}, nil
}

func isButton(code uint16) bool {
	return (code >= model.BtnMisc && code < model.KeyOK) || (code >= 0x2c0 && code < 0x2e8)
}

// frame 处理一个 evdev 帧 (SYN_REPORT 之前的所有事件)
// A frame is one atomic kernel report with a single timestamp, so output is
// ordered by kind, not by record: keys and buttons in record order, then one
// merged move, then vertical and horizontal scroll.
func (n *Normalizer) frame(raw model.RawEvent) ([]model.Event, error) {
	if raw.Dropped {
		return nil, &NormalizationError{Kind: raw.Kind, Reason: "frame dropped by kernel (SYN_DROPPED)"}
	}

	var (
		out                  []model.Event
		dx, dy               int32
		moved                bool
		absX, absY           *float64
		wheel, hwheel        int32
		wheelHi, hwheelHi    int32
		hasWheel, hasHWheel  bool
		hasWheelHi, hasHWhHi bool
	)

	for _, ie := range raw.Frame {
		switch ie.Type {
		case model.EvKey:
			if ie.Value < 0 || ie.Value > 2 {
				return nil, &NormalizationError{Kind: raw.Kind, Reason: fmt.Sprintf("key %d has invalid value %d", ie.Code, ie.Value)}
			}
			var (
				ev  model.Event
				err error
			)
			if isButton(ie.Code) {
				if ie.Value == 2 {
					continue
				}
				ev, err = n.event(raw, model.KindMouseButton, model.ButtonPayload{
					Code:      ie.Code,
					Button:    ButtonName(ie.Code),
					Pressed:   ie.Value == 1,
					Modifiers: raw.Modifiers,
				})
			} else {
				kind := model.KindKeyPress
				if ie.Value == 0 {
					kind = model.KindKeyRelease
				}
				ev, err = n.event(raw, kind, model.KeyPayload{
					Code:      ie.Code,
					Name:      KeyName(ie.Code),
					Repeat:    ie.Value == 2,
					Modifiers: raw.Modifiers,
				})
			}
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		case model.EvRel:
			switch ie.Code {
			case model.RelX:
				dx += ie.Value
				moved = true
			case model.RelY:
				dy += ie.Value
				moved = true
			case model.RelWheel:
				wheel += ie.Value
				hasWheel = true
			case model.RelHWheel:
				hwheel += ie.Value
				hasHWheel = true
			case model.RelWheelHiRes:
				wheelHi += ie.Value
				hasWheelHi = true
			case model.RelHWheelHiRes:
				hwheelHi += ie.Value
				hasHWhHi = true
			}
		case model.EvAbs:
			v := float64(ie.Value)
			switch ie.Code {
			case model.AbsX:
				absX = &v
				moved = true
			case model.AbsY:
				absY = &v
				moved = true
			}
		case model.EvSyn:
			if ie.Code == model.SynDropped {
				return nil, &NormalizationError{Kind: raw.Kind, Reason: "frame dropped by kernel (SYN_DROPPED)"}
			}
		}
	}

	if moved {
		ev, err := n.event(raw, model.KindMouseMove, model.MovePayload{DX: dx, DY: dy, X: absX, Y: absY})
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}

	// 同时上报高精度与普通滚轮值时，只取高精度值，避免重复计数
	scrolls := []model.ScrollPayload{}
	switch {
	case hasWheelHi:
		scrolls = append(scrolls, model.ScrollPayload{Axis: model.AxisVertical, Delta: float64(wheelHi) / model.HiResPerDetent, HighRes: true})
	case hasWheel:
		scrolls = append(scrolls, model.ScrollPayload{Axis: model.AxisVertical, Delta: float64(wheel)})
	}
	switch {
	case hasHWhHi:
		scrolls = append(scrolls, model.ScrollPayload{Axis: model.AxisHorizontal, Delta: float64(hwheelHi) / model.HiResPerDetent, HighRes: true})
	case hasHWheel:
		scrolls = append(scrolls, model.ScrollPayload{Axis: model.AxisHorizontal, Delta: float64(hwheel)})
	}
	for _, s := range scrolls {
		ev, err := n.event(raw, model.KindMouseScroll, s)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (n *Normalizer) hook(raw model.RawEvent) ([]model.Event, error) {
	h := raw.Hook
	if h == nil {
		return nil, &NormalizationError{Kind: raw.Kind, Reason: "missing hook payload"}
	}

	var (
		ev  model.Event
		err error
	)
	switch h.Kind {
	case model.HookKeyDown, model.HookKeyHold, model.HookKeyUp:
		kind := model.KindKeyPress
		if h.Kind == model.HookKeyUp {
			kind = model.KindKeyRelease
		}
		ev, err = n.event(raw, kind, model.KeyPayload{
			Code:      h.Rawcode,
			Name:      h.KeyName,
			Char:      h.Keychar,
			Repeat:    h.Kind == model.HookKeyHold,
			Modifiers: raw.Modifiers,
		})
	case model.HookMouseDown, model.HookMouseUp:
		ev, err = n.event(raw, model.KindMouseButton, model.ButtonPayload{
			Code:      h.Button,
			Button:    hookButtonName(h.Button),
			Pressed:   h.Kind == model.HookMouseDown,
			Modifiers: raw.Modifiers,
		})
	case model.HookMouseMove, model.HookMouseDrag:
		x, y := float64(h.X), float64(h.Y)
		ev, err = n.event(raw, model.KindMouseMove, model.MovePayload{X: &x, Y: &y})
	case model.HookMouseWheel:
		// libuiohook: direction 3 = vertical, 4 = horizontal
		axis := model.AxisVertical
		if h.Direction == 4 {
			axis = model.AxisHorizontal
		}
		ev, err = n.event(raw, model.KindMouseScroll, model.ScrollPayload{
			Axis:  axis,
			Delta: float64(h.Rotation) * float64(max(h.Amount, 1)),
		})
	default:
		return nil, &NormalizationError{Kind: raw.Kind, Reason: fmt.Sprintf("unknown hook kind %d", h.Kind)}
	}
	if err != nil {
		return nil, err
	}
	return []model.Event{ev}, nil
}
