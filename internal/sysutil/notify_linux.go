//go:build linux

package sysutil

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Notifier eventfd 封装，可以被 epoll 等待
type Notifier struct {
	fd int
}

func NewNotifier() (*Notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Notifier{fd: fd}, nil
}

func (n *Notifier) Fd() int { return n.fd }

// Signal makes the fd readable. Safe from any goroutine.
func (n *Notifier) Signal() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(n.fd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// counter saturated, fd is readable anyway
		return nil
	}
	return err
}

// Drain resets the counter so the fd is no longer readable.
func (n *Notifier) Drain() {
	var buf [8]byte
	_, _ = unix.Read(n.fd, buf[:])
}

func (n *Notifier) Close() error {
	return unix.Close(n.fd)
}
