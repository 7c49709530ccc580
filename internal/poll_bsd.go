//go:build darwin || netbsd || freebsd || openbsd || dragonfly

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

var _ Multiplexer = &Poller{}

// kqueue identifies an event by (ident, filter), so a timer ident and a
// socket fd with the same number never collide in the kernel. They must not
// collide here either.
type key struct {
	filter int64
	ident  uint64
}

type Poller struct {
	kq int

	waker *Pipe

	events []unix.Kevent_t

	regs map[key]Token

	next Token

	// timers is the ident allocator for EVFILT_TIMER. kqueue timers need
	// no file descriptor.
	timers uint64

	closed uint32
}

func NewMultiplexer() (Multiplexer, error) {
	return NewPoller()
}

func NewPoller() (*Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(kq)

	waker, err := NewPipe()
	if err != nil {
		_ = unix.Close(kq)
		return nil, err
	}

	p := &Poller{
		kq:     kq,
		waker:  waker,
		events: make([]unix.Kevent_t, 8),
		regs:   make(map[key]Token),
	}

	var ev unix.Kevent_t
	unix.SetKevent(&ev, waker.ReadFd(), unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
	if err := p.change(ev); err != nil {
		_ = waker.Close()
		_ = unix.Close(kq)
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
		return p.addFd(w.Fd, unix.EVFILT_READ)
	case InterestWrite:
		return p.addFd(w.Fd, unix.EVFILT_WRITE)
	case InterestTimer:
		return p.addTimer(w.Timeout)
	default:
		return 0, fmt.Errorf("%w: interest=%s", asyncerrors.ErrInvalidWatch, w.Interest)
	}
}

func (p *Poller) addFd(fd int, filter int) (Token, error) {
	if fd < 0 || fd == p.waker.ReadFd() {
		return 0, fmt.Errorf("%w: fd=%d", asyncerrors.ErrInvalidWatch, fd)
	}

	// One watch per fd, as with epoll.
	for _, f := range [...]int{unix.EVFILT_READ, unix.EVFILT_WRITE} {
		if _, ok := p.regs[key{filter: int64(f), ident: uint64(fd)}]; ok {
			return 0, fmt.Errorf("%w: fd=%d", asyncerrors.ErrAlreadyWatched, fd)
		}
	}
	k := key{filter: int64(filter), ident: uint64(fd)}

	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, filter, unix.EV_ADD|unix.EV_ENABLE|unix.EV_ONESHOT)
	if err := p.change(ev); err != nil {
		return 0, err
	}
	return p.register(k), nil
}

func (p *Poller) addTimer(dur time.Duration) (Token, error) {
	if dur < 0 {
		return 0, fmt.Errorf("%w: timeout=%s", asyncerrors.ErrInvalidWatch, dur)
	}

	p.timers++
	ident := p.timers

	var ev unix.Kevent_t
	unix.SetKevent(&ev, int(ident), unix.EVFILT_TIMER, unix.EV_ADD|unix.EV_ENABLE|unix.EV_ONESHOT)
	// Milliseconds, rounded up so a timer never fires early.
	ev.Data = int64((dur + time.Millisecond - 1) / time.Millisecond)

	if err := p.change(ev); err != nil {
		return 0, err
	}
	return p.register(key{filter: int64(unix.EVFILT_TIMER), ident: ident}), nil
}

func (p *Poller) register(k key) Token {
	p.next++
	p.regs[k] = p.next
	return p.next
}

func (p *Poller) Wait(ready []Token) (int, error) {
	if len(ready) == 0 {
		return 0, io.ErrShortBuffer
	}

	if len(p.events) < len(ready) {
		p.events = make([]unix.Kevent_t, len(ready))
	}

	n, err := unix.Kevent(p.kq, nil, p.events[:len(ready)], nil)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("kevent", err)
	}

	k := 0
	for i := 0; i < n; i++ {
		event := &p.events[i]

		filter, ident := int64(event.Filter), uint64(event.Ident)
		if filter == int64(unix.EVFILT_READ) && ident == uint64(p.waker.ReadFd()) {
			p.waker.Drain()
			continue
		}

		// EV_ONESHOT: the kernel already deleted the event.
		kk := key{filter: filter, ident: ident}
		token, ok := p.regs[kk]
		if !ok {
			continue
		}
		delete(p.regs, kk)

		ready[k] = token
		k++
	}

	return k, nil
}

func (p *Poller) Wake() error {
	_, err := p.waker.Write([]byte{1})
	return err
}

func (p *Poller) Pending() int {
	return len(p.regs)
}

func (p *Poller) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return io.EOF
	}

	p.regs = nil
	p.events = nil

	_ = p.waker.Close()
	return unix.Close(p.kq)
}

func (p *Poller) change(ev unix.Kevent_t) error {
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return os.NewSyscallError("kevent_add", err)
	}
	return nil
}
