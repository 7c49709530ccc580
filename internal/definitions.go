package internal

import (
	"fmt"
	"time"
)

// Interest is the kind of readiness a Watch waits for.
type Interest uint8

const (
	InterestRead Interest = iota
	InterestWrite
	InterestTimer
)

func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestTimer:
		return "timer"
	default:
		return fmt.Sprintf("interest_unknown(%d)", uint8(i))
	}
}

// Watch describes a one-shot readiness interest. Fd is used by InterestRead
// and InterestWrite, Timeout by InterestTimer. An fd has at most one watch
// armed at a time, whatever its interest.
type Watch struct {
	Interest Interest
	Fd       int
	Timeout  time.Duration
}

func (w Watch) String() string {
	switch w.Interest {
	case InterestTimer:
		return fmt.Sprintf("timer(%s)", w.Timeout)
	default:
		return fmt.Sprintf("%s(fd=%d)", w.Interest, w.Fd)
	}
}

// Token identifies an armed Watch. Tokens are allocated by the Multiplexer
// and are never reused during its lifetime.
type Token uint64

// Multiplexer is a kernel readiness-event queue.
//
// Add, Wait and Close must only be called from the goroutine that owns the
// Multiplexer. Wake is safe for concurrent use.
type Multiplexer interface {
	// Add registers a one-shot interest. Once the interest fires it is
	// removed from the kernel queue and its Token is never reported again.
	Add(w Watch) (Token, error)

	// Wait blocks until at least one interest fires or Wake is called, and
	// fills ready with the tokens of the fired interests. It returns the
	// number of tokens written. A wakeup with nothing ready returns 0.
	//
	// An interrupted wait returns 0 and a nil error.
	Wait(ready []Token) (int, error)

	// Wake interrupts a blocked Wait.
	Wake() error

	// Close releases the kernel queue and every resource the Multiplexer
	// created for its interests.
	Close() error
}
