//go:build linux

package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/Hara602/inputSentry/internal/sysutil"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// hotplugSource 监听 udev netlink，输出 input/event* 节点的 add/remove
type hotplugSource struct {
	conn   *netlink.UEventConn
	logger *zap.Logger
}

func newHotplugSource(logger *zap.Logger) *hotplugSource {
	return &hotplugSource{logger: logger}
}

func (h *hotplugSource) Name() string { return "udev hot-plug" }

func (h *hotplugSource) Open() error {
	// 连接 NETLINK_KOBJECT_UEVENT
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return &OpenError{Path: "udev netlink", Err: err}
	}
	if err := unix.SetNonblock(conn.Fd, true); err != nil {
		conn.Close()
		return &OpenError{Path: "udev netlink", Err: err}
	}
	h.conn = conn
	return nil
}

func (h *hotplugSource) WaitHandle() int {
	if h.conn == nil {
		return -1
	}
	return h.conn.Fd
}

func (h *hotplugSource) ReadRaw() (model.RawEvent, error) {
	for {
		uevent, err := h.conn.ReadUEvent()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return model.RawEvent{}, ErrWouldBlock
		}
		if err != nil {
			return model.RawEvent{}, fmt.Errorf("udev: %w", err)
		}
		if raw, ok := inputUEvent(*uevent); ok {
			h.logger.Debug("input hot-plug", zap.Stringer("kind", raw.Kind), zap.String("path", raw.Path))
			return raw, nil
		}
	}
}

func (h *hotplugSource) Close() error {
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}

// inputUEvent 只关心 SUBSYSTEM=input 且 DEVNAME=input/eventN 的事件
func inputUEvent(uevent netlink.UEvent) (model.RawEvent, bool) {
	if uevent.Env["SUBSYSTEM"] != "input" {
		return model.RawEvent{}, false
	}
	devName := uevent.Env["DEVNAME"]
	if devName == "" || !sysutil.IsEventNode(devName) {
		return model.RawEvent{}, false
	}
	if !strings.HasPrefix(devName, "/dev") {
		devName = "/dev/" + devName
	}

	var kind model.RawKind
	switch string(uevent.Action) {
	case "add":
		kind = model.RawAttach
	case "remove":
		kind = model.RawDetach
	default:
		return model.RawEvent{}, false
	}
	return model.RawEvent{
		Kind:        kind,
		Path:        devName,
		CaptureMono: sysutil.MonotonicNow(),
	}, true
}
