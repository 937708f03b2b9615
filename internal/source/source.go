// Package source implements the per-platform capture backends.
//
// Every backend exposes the same capability set through Source: open a device,
// hand out a handle the dispatcher can wait on, read raw events without
// blocking, and close.
package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Hara602/inputSentry/internal/devicefilter"
	"github.com/Hara602/inputSentry/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrWouldBlock 暂时没有数据，不是错误
	ErrWouldBlock = errors.New("source: would block")
	// ErrSourceGone 设备已移除，Source 应被注销
	ErrSourceGone = errors.New("source: device gone")
	// ErrFiltered device matched an ignore rule
	ErrFiltered = errors.New("source: device filtered")

	ErrUnknownBackend = errors.New("source: unknown backend")
	ErrNotCompiled    = errors.New("source: backend not compiled into this binary")
	ErrUnsupported    = errors.New("source: backend not supported on this platform")
)

// OpenError 单个设备打开失败，只影响这个设备
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open %s: %v", e.Path, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

type Source interface {
	Open() error
	// WaitHandle returns a file descriptor that becomes readable when ReadRaw has data.
	WaitHandle() int
	// ReadRaw returns ErrWouldBlock when nothing is pending.
	ReadRaw() (model.RawEvent, error)
	Close() error
}

// Named sources report a human readable name for logs.
type Named interface {
	Name() string
}

// Prober is implemented by sources that can check a silent device is still there.
type Prober interface {
	Probe() error
}

// DeviceSource is a source bound to one physical device.
type DeviceSource interface {
	Source
	Info() model.DeviceInfo
}

// Backend 一种采集机制 (evdev, 窗口系统钩子)，启动时根据配置选定
type Backend interface {
	Name() string
	// Start returns the sources to register at startup, unopened.
	// A non-nil error may accompany sources: it reports devices that were skipped.
	Start() ([]Source, error)
	// OpenDevice builds an unopened source for a device node that appeared at runtime.
	OpenDevice(path string) (Source, error)
}

type factory func(logger *zap.Logger, filter *devicefilter.Filter) (Backend, error)

// closed set of backends, keyed by the identifiers accepted in enabled_backends
var factories = map[string]factory{
	"evdev": newEvdevBackend,
	"hook":  newHookBackend,
}

// Available lists backend identifiers known to this build.
func Available() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the requested backends. A backend that cannot be built is
// reported in errs and skipped; the others are still returned.
func New(ids []string, logger *zap.Logger, filter *devicefilter.Filter) (backends []Backend, errs []error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, id := range ids {
		f, ok := factories[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q (available: %s)", ErrUnknownBackend, id, strings.Join(Available(), ", ")))
			continue
		}
		b, err := f(logger.Named(id), filter)
		if err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", id, err))
			continue
		}
		backends = append(backends, b)
	}
	return backends, errs
}

// NameOf returns a loggable name for any source.
func NameOf(s Source) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
