package asyncrt

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/talostrading/asyncrt/asyncerrors"
	"github.com/talostrading/asyncrt/internal"
)

type armRequest struct {
	watch internal.Watch

	// outstanding is the number of watches the loop will be waiting on once
	// this one is armed.
	outstanding int

	reply chan armReply
}

type armReply struct {
	token internal.Token
	err   error
}

// driver runs the readiness multiplexer on its own goroutine. That goroutine
// is the only one to Add to or Wait on the multiplexer: the loop asks it to
// arm watches through arms and learns about fired watches through ready.
type driver struct {
	mux internal.Multiplexer

	// arms has room for one request: the loop waits for the reply to a
	// request before it sends the next one.
	arms   chan armRequest
	ready  chan internal.Token
	faults chan error

	stop chan struct{}
	done chan struct{}

	// tokens is the buffer handed to Wait. It only grows.
	tokens []internal.Token

	// armed holds the tokens that have not fired yet. Only the driver
	// goroutine touches it.
	armed map[internal.Token]struct{}

	// mu keeps Wake from racing with the multiplexer being closed.
	mu     sync.RWMutex
	closed bool

	log zerolog.Logger
}

func newDriver(mux internal.Multiplexer, buffer int, log zerolog.Logger) *driver {
	d := &driver{
		mux:    mux,
		arms:   make(chan armRequest, 1),
		ready:  make(chan internal.Token),
		faults: make(chan error, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		tokens: make([]internal.Token, buffer),
		armed:  make(map[internal.Token]struct{}),
		log:    log,
	}
	go d.run()
	return d
}

// arm submits w and blocks until the driver has registered it with the
// multiplexer.
func (d *driver) arm(w internal.Watch, outstanding int) (internal.Token, error) {
	req := armRequest{
		watch:       w,
		outstanding: outstanding,
		reply:       make(chan armReply, 1),
	}

	select {
	case d.arms <- req:
	case <-d.done:
		return 0, asyncerrors.ErrDriverStopped
	}

	if err := d.wake(); err != nil {
		d.log.Warn().Err(err).Msg("could not wake the readiness driver")
	}

	select {
	case r := <-req.reply:
		return r.token, r.err
	case <-d.done:
		return 0, asyncerrors.ErrDriverStopped
	}
}

func (d *driver) wake() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return asyncerrors.ErrDriverStopped
	}
	return d.mux.Wake()
}

func (d *driver) run() {
	defer close(d.done)

	for {
		if len(d.armed) == 0 {
			// Nothing can fire: sleep until the loop arms something.
			select {
			case req := <-d.arms:
				d.apply(req)
			case <-d.stop:
				return
			}
			continue
		}

		for drained := false; !drained; {
			select {
			case req := <-d.arms:
				d.apply(req)
			case <-d.stop:
				return
			default:
				drained = true
			}
		}

		if len(d.armed) > len(d.tokens) {
			d.tokens = make([]internal.Token, len(d.armed))
		}

		n, err := d.mux.Wait(d.tokens)
		if err != nil {
			d.log.Error().Err(err).Int("outstanding", len(d.armed)).Msg("readiness driver failed")
			d.faults <- err
			return
		}

		fired := d.tokens[:n]
		for _, token := range fired {
			delete(d.armed, token)
		}

		for len(fired) > 0 {
			d.log.Debug().Uint64("token", uint64(fired[0])).Msg("watch ready")

			// Keep serving arm requests: the loop may be blocked in arm,
			// from a callback, while we wait for it to take this token.
			select {
			case d.ready <- fired[0]:
				fired = fired[1:]
			case req := <-d.arms:
				d.apply(req)
			case <-d.stop:
				return
			}
		}
	}
}

// apply registers req with the multiplexer and replies to the loop.
func (d *driver) apply(req armRequest) {
	if req.outstanding > len(d.tokens) {
		d.tokens = make([]internal.Token, req.outstanding)
	}

	token, err := d.mux.Add(req.watch)
	req.reply <- armReply{token: token, err: err}
	if err != nil {
		return
	}
	d.armed[token] = struct{}{}

	d.log.Debug().
		Stringer("watch", req.watch).
		Uint64("token", uint64(token)).
		Int("outstanding", req.outstanding).
		Msg("watch armed")
}

// close stops the driver goroutine and then releases the multiplexer.
func (d *driver) close() error {
	close(d.stop)
	_ = d.wake()
	<-d.done

	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.mux.Close()
}
