package asyncrt

import (
	"fmt"

	"github.com/talostrading/asyncrt/asyncerrors"
)

// CallbackID identifies a pending Callback.
type CallbackID uint64

// Callback is a one-shot completion handler. It always runs on the goroutine
// that called Runtime.Run.
type Callback func(Value)

// registry holds the pending callbacks. It is only touched by the loop
// goroutine.
type registry struct {
	callbacks map[CallbackID]Callback

	// last is the most recently issued identity. It wraps on overflow.
	last CallbackID
}

func newRegistry() *registry {
	return &registry{
		callbacks: make(map[CallbackID]Callback),
	}
}

// add stores cb under an identity that no pending callback holds.
//
// After a wraparound the counter may land on a still-pending identity, in
// which case it keeps advancing. This terminates as long as fewer than 2^64
// callbacks are pending.
func (r *registry) add(cb Callback) CallbackID {
	for {
		r.last++
		if _, taken := r.callbacks[r.last]; !taken {
			r.callbacks[r.last] = cb
			return r.last
		}
	}
}

// take removes and returns the callback for id. Every identity can be taken
// exactly once.
func (r *registry) take(id CallbackID) (Callback, error) {
	cb, ok := r.callbacks[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", asyncerrors.ErrUnknownCallback, id)
	}
	delete(r.callbacks, id)
	return cb, nil
}

func (r *registry) size() int {
	return len(r.callbacks)
}
