//go:build linux

package internal

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// EventFd is the waker of the epoll Multiplexer. Writes accumulate in the
// kernel counter until drained.
type EventFd struct {
	fd int
	b  [8]byte
}

func NewEventFd() (*EventFd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &EventFd{fd: fd}, nil
}

func (e *EventFd) Write(x uint64) (int, error) {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], x)
	return unix.Write(e.fd, b[:])
}

// Drain resets the counter. It never blocks.
func (e *EventFd) Drain() {
	for {
		if _, err := unix.Read(e.fd, e.b[:]); err != nil {
			return
		}
	}
}

func (e *EventFd) Fd() int {
	return e.fd
}

func (e *EventFd) Close() error {
	return unix.Close(e.fd)
}
