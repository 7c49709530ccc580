//go:build linux

package internal

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/talostrading/asyncrt/asyncerrors"
	"golang.org/x/sys/unix"
)

const (
	readFlags  = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLONESHOT
	writeFlags = unix.EPOLLOUT | unix.EPOLLONESHOT
)

var _ Multiplexer = &Poller{}

type registration struct {
	token Token

	// timer is true if fd is a timerfd created, and therefore closed, by the
	// Poller.
	timer bool
}

type Poller struct {
	// fd is the file descriptor returned by calling epoll_create1.
	fd int

	// waker is registered level-triggered for reads, so a Wake that lands
	// before Wait still interrupts it.
	waker *EventFd

	// events is resized by Wait to the capacity asked by the caller.
	events []unix.EpollEvent

	// regs maps every armed fd to its registration. An fd leaves regs, and
	// the epoll interest set, the moment its event is reported.
	regs map[int32]registration

	next Token

	closed uint32
}

func NewMultiplexer() (Multiplexer, error) {
	return NewPoller()
}

func NewPoller() (*Poller, error) {
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	waker, err := NewEventFd()
	if err != nil {
		_ = unix.Close(epollFd)
		return nil, err
	}

	p := &Poller{
		fd:     epollFd,
		waker:  waker,
		events: make([]unix.EpollEvent, 8),
		regs:   make(map[int32]registration),
	}

	if err := p.add(waker.Fd(), unix.EPOLLIN); err != nil {
		_ = waker.Close()
		_ = unix.Close(epollFd)
		return nil, err
	}

	return p, nil
}

func (p *Poller) Add(w Watch) (Token, error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return 0, io.EOF
	}

	switch w.Interest {
	case InterestRead:
		return p.addFd(w.Fd, readFlags)
	case InterestWrite:
		return p.addFd(w.Fd, writeFlags)
	case InterestTimer:
		return p.addTimer(w.Timeout)
	default:
		return 0, fmt.Errorf("%w: interest=%s", asyncerrors.ErrInvalidWatch, w.Interest)
	}
}

func (p *Poller) addFd(fd int, flags uint32) (Token, error) {
	if fd < 0 || fd == p.waker.Fd() {
		return 0, fmt.Errorf("%w: fd=%d", asyncerrors.ErrInvalidWatch, fd)
	}
	if _, ok := p.regs[int32(fd)]; ok {
		return 0, fmt.Errorf("%w: fd=%d", asyncerrors.ErrAlreadyWatched, fd)
	}

	if err := p.add(fd, flags); err != nil {
		return 0, err
	}
	return p.register(fd, false), nil
}

func (p *Poller) addTimer(dur time.Duration) (Token, error) {
	if dur < 0 {
		return 0, fmt.Errorf("%w: timeout=%s", asyncerrors.ErrInvalidWatch, dur)
	}

	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return 0, os.NewSyscallError("timerfd_create", err)
	}

	// A zero it_value disarms a timerfd, so the shortest timer is 1ns.
	if dur == 0 {
		dur = time.Nanosecond
	}
	err = unix.TimerfdSettime(fd, 0, &unix.ItimerSpec{
		Value: unix.NsecToTimespec(dur.Nanoseconds()),
	}, nil)
	if err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("timerfd_settime", err)
	}

	if err := p.add(fd, readFlags); err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	return p.register(fd, true), nil
}

func (p *Poller) register(fd int, timer bool) Token {
	p.next++
	p.regs[int32(fd)] = registration{token: p.next, timer: timer}
	return p.next
}

func (p *Poller) Wait(ready []Token) (int, error) {
	if len(ready) == 0 {
		return 0, io.ErrShortBuffer
	}

	// Every reported fd yields at most one token, so asking the kernel for
	// len(ready) events can never produce more tokens than ready holds.
	if len(p.events) < len(ready) {
		p.events = make([]unix.EpollEvent, len(ready))
	}

	n, err := unix.EpollWait(p.fd, p.events[:len(ready)], -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}

	k := 0
	for i := 0; i < n; i++ {
		fd := p.events[i].Fd

		if int(fd) == p.waker.Fd() {
			p.waker.Drain()
			continue
		}

		reg, ok := p.regs[fd]
		if !ok {
			continue
		}
		delete(p.regs, fd)
		p.release(int(fd), reg)

		ready[k] = reg.token
		k++
	}

	return k, nil
}

// release takes a fired fd out of the interest set. EPOLLONESHOT only
// disables it; deleting it lets the same fd be armed again.
func (p *Poller) release(fd int, reg registration) {
	if reg.timer {
		_ = unix.Close(fd)
		return
	}
	_ = p.del(fd)
}

func (p *Poller) Wake() error {
	_, err := p.waker.Write(1)
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *Poller) Pending() int {
	return len(p.regs)
}

func (p *Poller) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return io.EOF
	}

	for fd, reg := range p.regs {
		p.release(int(fd), reg)
	}
	p.regs = nil
	p.events = nil

	_ = p.waker.Close()
	return unix.Close(p.fd)
}

func (p *Poller) add(fd int, events uint32) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
	if err == unix.EEXIST {
		return fmt.Errorf("%w: fd=%d", asyncerrors.ErrAlreadyWatched, fd)
	}
	if err != nil {
		return os.NewSyscallError("epoll_ctl_add", err)
	}
	return nil
}

func (p *Poller) del(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return os.NewSyscallError("epoll_ctl_del", err)
	}
	return nil
}
