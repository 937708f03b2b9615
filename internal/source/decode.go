package source

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Hara602/inputSentry/internal/model"
)

// Frame 一组以 SYN_REPORT 结束的 evdev 记录
type Frame struct {
	Time      time.Duration
	Events    []model.InputEvent
	Dropped   bool
	Modifiers model.Modifiers
}

// modifier keys from linux/input-event-codes.h
const (
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keyCapsLock   = 58
	keyNumLock    = 69
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyLeftMeta   = 125
	keyRightMeta  = 126

	ledNumLock  = 0
	ledCapsLock = 1
)

var heldModifiers = map[uint16]model.Modifiers{
	keyLeftShift:  model.ModShift,
	keyRightShift: model.ModShift,
	keyLeftCtrl:   model.ModControl,
	keyRightCtrl:  model.ModControl,
	keyLeftAlt:    model.ModAlt,
	keyRightAlt:   model.ModAltGr,
	keyLeftMeta:   model.ModSuper,
	keyRightMeta:  model.ModSuper,
}

// FrameDecoder turns the byte stream of one evdev node into frames and keeps
// that device's modifier state. It is not safe for concurrent use.
type FrameDecoder struct {
	pending  []model.InputEvent
	dropping bool
	held     map[uint16]bool
	locks    model.Modifiers
}

func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{held: make(map[uint16]bool)}
}

// Modifiers returns the current modifier state.
func (d *FrameDecoder) Modifiers() model.Modifiers {
	m := d.locks
	for code, down := range d.held {
		if down {
			m |= heldModifiers[code]
		}
	}
	return m
}

// Feed decodes whole struct input_event records and returns every frame they complete.
// Records of an unfinished frame are kept for the next call.
func (d *FrameDecoder) Feed(b []byte) ([]Frame, error) {
	if len(b)%model.InputEventSize != 0 {
		return nil, fmt.Errorf("evdev: short read of %d bytes", len(b))
	}
	var frames []Frame
	for off := 0; off < len(b); off += model.InputEventSize {
		rec := b[off : off+model.InputEventSize]
		sec := readLong(rec[0:])
		usec := readLong(rec[model.LongSize:])
		body := rec[2*model.LongSize:]
		ie := model.InputEvent{
			Type:  binary.NativeEndian.Uint16(body[0:2]),
			Code:  binary.NativeEndian.Uint16(body[2:4]),
			Value: int32(binary.NativeEndian.Uint32(body[4:8])),
		}
		ts := time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond

		if ie.Type == model.EvSyn {
			switch ie.Code {
			case model.SynDropped:
				// kernel buffer overran: everything up to the next SYN_REPORT is unreliable
				d.dropping = true
				d.pending = nil
				clear(d.held)
			case model.SynReport:
				if d.dropping {
					frames = append(frames, Frame{Time: ts, Dropped: true})
					d.dropping = false
				} else if len(d.pending) > 0 {
					frames = append(frames, Frame{Time: ts, Events: d.pending, Modifiers: d.Modifiers()})
				}
				d.pending = nil
			}
			continue
		}
		if d.dropping {
			continue
		}
		d.track(ie)
		d.pending = append(d.pending, ie)
	}
	return frames, nil
}

// readLong reads one kernel long of the timeval.
func readLong(b []byte) int64 {
	if model.LongSize == 4 {
		return int64(int32(binary.NativeEndian.Uint32(b)))
	}
	return int64(binary.NativeEndian.Uint64(b))
}

func (d *FrameDecoder) track(ie model.InputEvent) {
	switch ie.Type {
	case model.EvKey:
		if _, ok := heldModifiers[ie.Code]; ok {
			d.held[ie.Code] = ie.Value != 0
			return
		}
		if ie.Value != 1 {
			return
		}
		switch ie.Code {
		case keyCapsLock:
			d.locks ^= model.ModCapsLock
		case keyNumLock:
			d.locks ^= model.ModNumLock
		}
	case model.EvLed:
		// LED state is authoritative when the device reports it
		var bit model.Modifiers
		switch ie.Code {
		case ledCapsLock:
			bit = model.ModCapsLock
		case ledNumLock:
			bit = model.ModNumLock
		default:
			return
		}
		if ie.Value != 0 {
			d.locks |= bit
		} else {
			d.locks &^= bit
		}
	}
}
