//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"os"

	"golang.org/x/sys/unix"
)

// Pipe is the waker of the kqueue Multiplexer. Both ends are non-blocking;
// a full pipe already guarantees a pending wakeup.
type Pipe struct {
	pipe [2]int
	b    [64]byte
}

func NewPipe() (*Pipe, error) {
	p := &Pipe{}
	if err := unix.Pipe(p.pipe[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range p.pipe {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			p.Close()
			return nil, os.NewSyscallError("pipe set_nonblock", err)
		}
	}
	return p, nil
}

func (p *Pipe) Write(b []byte) (int, error) {
	n, err := unix.Write(p.pipe[1], b)
	if err == unix.EAGAIN {
		return 0, nil
	}
	return n, err
}

func (p *Pipe) Drain() {
	for {
		if n, err := unix.Read(p.pipe[0], p.b[:]); err != nil || n == 0 {
			return
		}
	}
}

func (p *Pipe) ReadFd() int {
	return p.pipe[0]
}

func (p *Pipe) Close() error {
	if err := unix.Close(p.pipe[0]); err != nil {
		return err
	}
	return unix.Close(p.pipe[1])
}
