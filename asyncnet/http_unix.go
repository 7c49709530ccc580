//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package asyncnet

import (
	"fmt"

	"github.com/talostrading/asyncrt"
	"github.com/talostrading/asyncrt/internal"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// HTTPGet sends a plain HTTP/1.1 GET for path to addr and invokes cb once with
// the raw response, status line and headers included, as Text.
//
// Nothing blocks the loop: the connect completes, and the request is written,
// whenever the socket is writable, and the response is read whenever it is
// readable, until the server closes the connection.
//
// If the connect fails straight away the error is returned and cb is never
// invoked. Later errors are delivered to cb as a Failure. If the runtime is
// closed first, cb is never invoked and the socket is closed.
func HTTPGet(rt *asyncrt.Runtime, addr, path string, cb asyncrt.Callback) error {
	if path == "" {
		path = "/"
	}

	fd, inProgress, err := internal.DialTCP("tcp", addr)
	if err != nil {
		return err
	}

	c := &request{
		rt:         rt,
		fd:         fd,
		req:        []byte(fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, addr)),
		connecting: inProgress,
		buf:        bytebufferpool.Get(),
		cb:         cb,
	}
	if err := rt.RegisterWatch(asyncrt.Writable(fd), c.onWritable); err != nil {
		c.release()
		return err
	}
	c.untrack = rt.OnClose(c.release)
	return nil
}

type request struct {
	rt *asyncrt.Runtime
	fd int

	// req is what is left of the request to write.
	req        []byte
	connecting bool

	buf *bytebufferpool.ByteBuffer
	cb  asyncrt.Callback

	untrack  func()
	released bool
}

func (c *request) onWritable(asyncrt.Value) {
	if c.connecting {
		c.connecting = false
		if err := internal.ConnectError(c.fd); err != nil {
			c.finish(asyncrt.Failure(err))
			return
		}
	}

	n, err := internal.Write(c.fd, c.req)
	if err != nil {
		c.finish(asyncrt.Failure(err))
		return
	}
	c.req = c.req[n:]

	next := asyncrt.Readable(c.fd)
	cb := c.onReadable
	if len(c.req) > 0 {
		next, cb = asyncrt.Writable(c.fd), c.onWritable
	}
	if err := c.rt.RegisterWatch(next, cb); err != nil {
		c.finish(asyncrt.Failure(err))
	}
}

func (c *request) onReadable(asyncrt.Value) {
	var b [4096]byte
	for {
		n, err := unix.Read(c.fd, b[:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if err := c.rt.RegisterWatch(asyncrt.Readable(c.fd), c.onReadable); err != nil {
				c.finish(asyncrt.Failure(err))
			}
			return
		case err != nil:
			c.finish(asyncrt.Failure(fmt.Errorf("read: %w", err)))
			return
		case n == 0:
			c.finish(asyncrt.Text(c.buf.String()))
			return
		}
		_, _ = c.buf.Write(b[:n])
	}
}

func (c *request) finish(v asyncrt.Value) {
	c.untrack()
	c.release()
	c.cb(v)
}

// release runs from finish or, when the runtime is closed first, as one of
// its closers.
func (c *request) release() {
	if c.released {
		return
	}
	c.released = true

	_ = unix.Close(c.fd)
	bytebufferpool.Put(c.buf)
	c.buf = nil
}
