//go:build linux

package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/Hara602/inputSentry/internal/sysutil"
	"golang.org/x/sys/unix"
)

// poller 基于 epoll 的就绪等待，控制通道是同一集合中的 eventfd
type poller struct {
	epfd    int
	control *sysutil.Notifier
	events  []unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	control, err := sysutil.NewNotifier()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &poller{epfd: epfd, control: control, events: make([]unix.EpollEvent, 64)}
	if err := p.add(control.Fd()); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// level triggered: a source with unread data wakes the next wait again
func (p *poller) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", fd, err)
	}
	return nil
}

func (p *poller) remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll del fd %d: %w", fd, err)
	}
	return nil
}

// wait blocks up to timeout and returns the ready source fds. A wake on the
// control channel returns with no fds; the caller checks its command queue.
func (p *poller) wait(timeout time.Duration) ([]int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	ready := make([]int, 0, n)
	for _, ev := range p.events[:n] {
		fd := int(ev.Fd)
		if fd == p.control.Fd() {
			p.control.Drain()
			continue
		}
		// EPOLLHUP/EPOLLERR are reported too; the read surfaces the condition
		ready = append(ready, fd)
	}
	return ready, nil
}

func (p *poller) wake() error { return p.control.Signal() }

func (p *poller) close() error {
	err := p.control.Close()
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}
