//go:build linux

package source

import (
	"errors"
	"fmt"

	"github.com/Hara602/inputSentry/internal/devicefilter"
	"github.com/Hara602/inputSentry/internal/model"
	"github.com/Hara602/inputSentry/internal/sysutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ioctl numbers from linux/input.h
const (
	eviocgversion = 0x80044501 // _IOR('E', 0x01, int)
	eviocsclockid = 0x400445a0 // _IOW('E', 0xa0, int)
)

// records read per syscall
const readRecords = 64

type evdevBackend struct {
	logger *zap.Logger
	filter *devicefilter.Filter
}

func newEvdevBackend(logger *zap.Logger, filter *devicefilter.Filter) (Backend, error) {
	return &evdevBackend{logger: logger, filter: filter}, nil
}

func (b *evdevBackend) Name() string { return "evdev" }

// Start 枚举 /dev/input/event*，同时返回热插拔监听源
func (b *evdevBackend) Start() ([]Source, error) {
	srcs := []Source{newHotplugSource(b.logger)}

	nodes, err := sysutil.ListEventNodes()
	if err != nil {
		return srcs, err
	}
	var errs error
	for _, node := range nodes {
		src, err := b.OpenDevice(node)
		if errors.Is(err, ErrFiltered) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		srcs = append(srcs, src)
	}
	return srcs, errs
}

func (b *evdevBackend) OpenDevice(path string) (Source, error) {
	info, err := sysutil.DescribeInput(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	if ignored, rule := b.filter.IsIgnored(info); ignored {
		b.logger.Info("device ignored",
			zap.String("path", path),
			zap.String("name", info.Name),
			zap.String("rule", rule))
		return nil, ErrFiltered
	}
	return newEvdevSource(info, b.logger), nil
}

// evdevSource 一个 /dev/input/eventN 节点
type evdevSource struct {
	info   model.DeviceInfo
	logger *zap.Logger

	fd        int
	clock     model.Clock
	dec       *FrameDecoder
	queue     []Frame
	announced bool
	gone      bool
	buf       []byte
}

func newEvdevSource(info model.DeviceInfo, logger *zap.Logger) *evdevSource {
	return &evdevSource{
		info:   info,
		logger: logger,
		fd:     -1,
		dec:    NewFrameDecoder(),
		buf:    make([]byte, readRecords*model.InputEventSize),
	}
}

func (s *evdevSource) Name() string           { return fmt.Sprintf("%s (%s)", s.info.Name, s.info.Path) }
func (s *evdevSource) Info() model.DeviceInfo { return s.info }
func (s *evdevSource) WaitHandle() int        { return s.fd }

func (s *evdevSource) Open() error {
	fd, err := unix.Open(s.info.Path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return &OpenError{Path: s.info.Path, Err: err}
	}
	s.fd = fd
	s.clock = model.ClockMonotonic
	if err := unix.IoctlSetPointerInt(fd, eviocsclockid, unix.CLOCK_MONOTONIC); err != nil {
		// old kernels: timestamps stay on CLOCK_REALTIME
		s.clock = model.ClockRealtime
		s.logger.Debug("EVIOCSCLOCKID failed, using realtime timestamps",
			zap.String("path", s.info.Path), zap.Error(err))
	}
	return nil
}

func (s *evdevSource) ReadRaw() (model.RawEvent, error) {
	if s.gone {
		return model.RawEvent{}, ErrSourceGone
	}
	if !s.announced {
		s.announced = true
		info := s.info
		return model.RawEvent{
			Kind:        model.RawConnect,
			PlatformID:  s.info.PlatformID,
			Path:        s.info.Path,
			CaptureMono: sysutil.MonotonicNow(),
			Info:        &info,
		}, nil
	}

	for len(s.queue) == 0 {
		n, err := unix.Read(s.fd, s.buf)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			return model.RawEvent{}, ErrWouldBlock
		case errors.Is(err, unix.ENODEV), errors.Is(err, unix.EIO), err == nil && n == 0:
			return s.disconnect(), nil
		case err != nil:
			return model.RawEvent{}, fmt.Errorf("read %s: %w", s.info.Path, err)
		}
		frames, err := s.dec.Feed(s.buf[:n])
		if err != nil {
			return model.RawEvent{}, fmt.Errorf("decode %s: %w", s.info.Path, err)
		}
		s.queue = frames
		if len(frames) == 0 && n < len(s.buf) {
			// rest of the frame has not arrived yet
			return model.RawEvent{}, ErrWouldBlock
		}
	}

	f := s.queue[0]
	s.queue = s.queue[1:]
	return model.RawEvent{
		Kind:        model.RawInput,
		PlatformID:  s.info.PlatformID,
		Path:        s.info.Path,
		Clock:       s.clock,
		DeviceTime:  f.Time,
		CaptureMono: sysutil.MonotonicNow(),
		Frame:       f.Events,
		Dropped:     f.Dropped,
		Modifiers:   f.Modifiers,
	}, nil
}

// disconnect yields the one synthetic disconnect; later reads return ErrSourceGone.
func (s *evdevSource) disconnect() model.RawEvent {
	s.gone = true
	s.queue = nil
	return model.RawEvent{
		Kind:        model.RawDisconnect,
		PlatformID:  s.info.PlatformID,
		Path:        s.info.Path,
		CaptureMono: sysutil.MonotonicNow(),
	}
}

// Probe 设备长时间无输入时检查节点是否仍然有效
func (s *evdevSource) Probe() error {
	_, err := unix.IoctlGetInt(s.fd, eviocgversion)
	return err
}

func (s *evdevSource) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
