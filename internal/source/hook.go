//go:build hook && linux

package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/Hara602/inputSentry/internal/devicefilter"
	"github.com/Hara602/inputSentry/internal/model"
	"github.com/Hara602/inputSentry/internal/sysutil"
	hook "github.com/robotn/gohook"
	"go.uber.org/zap"
)

const (
	hookPlatformID = "hook:x11"
	charUndefined  = 0xFFFF
)

// libuiohook modifier mask bits
const (
	maskShiftL   = 1 << 0
	maskCtrlL    = 1 << 1
	maskMetaL    = 1 << 2
	maskAltL     = 1 << 3
	maskShiftR   = 1 << 4
	maskCtrlR    = 1 << 5
	maskMetaR    = 1 << 6
	maskAltR     = 1 << 7
	maskNumLock  = 1 << 13
	maskCapsLock = 1 << 14
)

type hookBackend struct {
	logger *zap.Logger
	filter *devicefilter.Filter
}

func newHookBackend(logger *zap.Logger, filter *devicefilter.Filter) (Backend, error) {
	return &hookBackend{logger: logger, filter: filter}, nil
}

func (b *hookBackend) Name() string { return "hook" }

func (b *hookBackend) Start() ([]Source, error) {
	src := newHookSource(b.logger)
	if ignored, rule := b.filter.IsIgnored(src.info); ignored {
		b.logger.Info("hook source ignored", zap.String("rule", rule))
		return nil, nil
	}
	return []Source{src}, nil
}

// OpenDevice 全局钩子没有设备节点
func (b *hookBackend) OpenDevice(path string) (Source, error) {
	return nil, &OpenError{Path: path, Err: ErrUnsupported}
}

// hookSource 桥接 gohook 的事件 channel：转发协程写队列并触发 eventfd
type hookSource struct {
	info   model.DeviceInfo
	logger *zap.Logger

	notify *sysutil.Notifier
	events chan hook.Event
	stop   chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	queue []hook.Event

	announced bool
	pressed   map[uint16]bool
}

func newHookSource(logger *zap.Logger) *hookSource {
	return &hookSource{
		info: model.DeviceInfo{
			PlatformID:   hookPlatformID,
			Name:         "X11 global hook",
			Capabilities: model.CapKeyboard | model.CapPointer,
		},
		logger:  logger,
		pressed: make(map[uint16]bool),
	}
}

func (s *hookSource) Name() string           { return s.info.Name }
func (s *hookSource) Info() model.DeviceInfo { return s.info }

func (s *hookSource) Open() error {
	n, err := sysutil.NewNotifier()
	if err != nil {
		return &OpenError{Path: hookPlatformID, Err: err}
	}
	s.notify = n
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.events = hook.Start()
	go s.forward()
	return nil
}

func (s *hookSource) forward() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.mu.Lock()
			s.queue = append(s.queue, ev)
			s.mu.Unlock()
			if err := s.notify.Signal(); err != nil {
				s.logger.Warn("hook notify failed", zap.Error(err))
			}
		}
	}
}

func (s *hookSource) WaitHandle() int { return s.notify.Fd() }

func (s *hookSource) pop() (hook.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.notify.Drain()
		return hook.Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *hookSource) ReadRaw() (model.RawEvent, error) {
	if !s.announced {
		s.announced = true
		info := s.info
		return model.RawEvent{
			Kind:        model.RawConnect,
			PlatformID:  hookPlatformID,
			CaptureMono: sysutil.MonotonicNow(),
			Info:        &info,
		}, nil
	}
	for {
		ev, ok := s.pop()
		if !ok {
			return model.RawEvent{}, ErrWouldBlock
		}
		if in, ok := s.convert(ev); ok {
			return model.RawEvent{
				Kind:        model.RawHook,
				PlatformID:  hookPlatformID,
				Clock:       model.ClockRealtime,
				DeviceTime:  timeOf(ev),
				CaptureMono: sysutil.MonotonicNow(),
				Hook:        &in,
				Modifiers:   hookModifiers(ev.Mask),
			}, nil
		}
	}
}

// convert maps gohook kinds. gohook names follow libuiohook's numbering:
// KeyHold is a key press, MouseHold a button press and MouseDown a release.
// Typed and clicked events duplicate press/release and are skipped.
func (s *hookSource) convert(ev hook.Event) (model.HookInput, bool) {
	in := model.HookInput{
		Keycode:   ev.Keycode,
		Rawcode:   ev.Rawcode,
		Button:    ev.Button,
		X:         ev.X,
		Y:         ev.Y,
		Amount:    ev.Amount,
		Rotation:  ev.Rotation,
		Direction: ev.Direction,
	}
	switch ev.Kind {
	case hook.KeyHold:
		in.Kind = model.HookKeyDown
		if s.pressed[ev.Rawcode] {
			in.Kind = model.HookKeyHold
		}
		s.pressed[ev.Rawcode] = true
	case hook.KeyUp:
		in.Kind = model.HookKeyUp
		delete(s.pressed, ev.Rawcode)
	case hook.MouseHold:
		in.Kind = model.HookMouseDown
	case hook.MouseDown:
		in.Kind = model.HookMouseUp
	case hook.MouseMove:
		in.Kind = model.HookMouseMove
	case hook.MouseDrag:
		in.Kind = model.HookMouseDrag
	case hook.MouseWheel:
		in.Kind = model.HookMouseWheel
	default:
		return in, false
	}
	if in.Kind <= model.HookKeyUp {
		in.KeyName = hook.RawcodetoKeychar(ev.Rawcode)
		if ev.Keychar != charUndefined && ev.Keychar != 0 {
			in.Keychar = string(ev.Keychar)
		}
	}
	return in, true
}

func hookModifiers(mask uint16) model.Modifiers {
	var m model.Modifiers
	if mask&(maskShiftL|maskShiftR) != 0 {
		m |= model.ModShift
	}
	if mask&(maskCtrlL|maskCtrlR) != 0 {
		m |= model.ModControl
	}
	if mask&maskAltL != 0 {
		m |= model.ModAlt
	}
	if mask&maskAltR != 0 {
		m |= model.ModAltGr
	}
	if mask&(maskMetaL|maskMetaR) != 0 {
		m |= model.ModSuper
	}
	if mask&maskNumLock != 0 {
		m |= model.ModNumLock
	}
	if mask&maskCapsLock != 0 {
		m |= model.ModCapsLock
	}
	return m
}

func (s *hookSource) Close() error {
	if s.notify == nil {
		return nil
	}
	close(s.stop)
	hook.End()
	<-s.done
	err := s.notify.Close()
	s.notify = nil
	if err != nil {
		return fmt.Errorf("close hook notifier: %w", err)
	}
	return nil
}

func timeOf(ev hook.Event) time.Duration {
	if ev.When.IsZero() {
		return 0
	}
	return time.Duration(ev.When.UnixNano())
}
