package asyncrt

import (
	"time"

	"github.com/talostrading/asyncrt/internal"
)

// Watch is a one-shot readiness interest: it fires at most once.
type Watch struct {
	w internal.Watch
}

// Timeout fires once d has elapsed.
func Timeout(d time.Duration) Watch {
	return Watch{w: internal.Watch{
		Interest: internal.InterestTimer,
		Timeout:  d,
	}}
}

// Readable fires once fd has data to read, or its peer hung up.
//
// The fd must stay open until the watch fires. At most one watch per fd may
// be outstanding.
func Readable(fd int) Watch {
	return Watch{w: internal.Watch{
		Interest: internal.InterestRead,
		Fd:       fd,
	}}
}

// Writable fires once fd can be written to without blocking, or once a
// non-blocking connect on fd has completed. The same rules as for Readable
// apply, and the two share the one-watch-per-fd limit.
func Writable(fd int) Watch {
	return Watch{w: internal.Watch{
		Interest: internal.InterestWrite,
		Fd:       fd,
	}}
}

func (w Watch) String() string {
	return w.w.String()
}
