// Package asyncrt is a single-goroutine event loop. Application code hands
// it blocking work, run on a fixed pool of workers, and readiness watches,
// observed by a kernel event queue, and gets each result back through a
// one-shot callback that always runs on the loop goroutine.
package asyncrt

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/talostrading/asyncrt/asyncerrors"
	"github.com/talostrading/asyncrt/internal"
)

const (
	stateIdle uint32 = iota
	stateRunning
	stateTerminated
)

var errNilCallback = errors.New("nil task or callback")

// Runtime is the event loop.
//
// RegisterWork and RegisterWatch must be called from the function passed to
// Run or from a callback; none of Runtime's bookkeeping is synchronised.
// Pending, Stats and Close are safe for concurrent use.
type Runtime struct {
	log zerolog.Logger

	registry *registry
	pool     *pool
	driver   *driver

	// watches maps the token of every armed watch to its callback. A token
	// leaves the map the moment its readiness is dispatched.
	watches map[internal.Token]CallbackID

	// pending counts registered tasks and watches whose callback has not
	// run yet. Run returns when it drops to zero.
	pending int64

	stats *stats

	// closers release resources held on behalf of callbacks that may never
	// run. See OnClose.
	mu         sync.Mutex
	closers    map[uint64]func()
	nextCloser uint64

	state   uint32
	closed  uint32
	closing chan struct{}
}

func New(opts ...Option) (*Runtime, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	mux, err := internal.NewMultiplexer()
	if err != nil {
		return nil, err
	}

	return newRuntime(cfg, mux), nil
}

func MustNew(opts ...Option) *Runtime {
	rt, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return rt
}

func newRuntime(cfg config, mux internal.Multiplexer) *Runtime {
	return &Runtime{
		log:      cfg.log,
		registry: newRegistry(),
		pool:     newPool(cfg.workers, cfg.backlog, cfg.log),
		driver:   newDriver(mux, cfg.driverBuffer, cfg.log),
		watches:  make(map[internal.Token]CallbackID),
		stats:    newStats(cfg.stats),
		closers:  make(map[uint64]func()),
		closing:  make(chan struct{}),
	}
}

// RegisterWork runs fn on an idle worker and later invokes cb with its
// result. kind is only used for diagnostics.
//
// If every worker is busy, and the backlog is full or disabled, cb is
// discarded and ErrPoolExhausted is returned.
func (r *Runtime) RegisterWork(fn func() Value, kind TaskKind, cb Callback) error {
	if fn == nil || cb == nil {
		return errNilCallback
	}
	if r.Closed() {
		return asyncerrors.ErrClosed
	}

	id := r.registry.add(cb)
	if err := r.pool.submit(&task{fn: fn, id: id, kind: kind}); err != nil {
		_, _ = r.registry.take(id)
		r.log.Warn().
			Stringer("kind", kind).
			Int("workers", r.pool.size()).
			Int("queued", r.pool.queued()).
			Msg("rejected task")
		return err
	}
	atomic.AddInt64(&r.pending, 1)

	r.log.Debug().
		Stringer("kind", kind).
		Uint64("callback", uint64(id)).
		Int64("pending", r.Pending()).
		Msg("task registered")
	return nil
}

// RegisterWatch arms w and invokes cb with Undefined once it fires.
func (r *Runtime) RegisterWatch(w Watch, cb Callback) error {
	if cb == nil {
		return errNilCallback
	}
	if r.Closed() {
		return asyncerrors.ErrClosed
	}

	id := r.registry.add(cb)
	token, err := r.driver.arm(w.w, len(r.watches)+1)
	if err != nil {
		_, _ = r.registry.take(id)
		return err
	}
	r.watches[token] = id
	atomic.AddInt64(&r.pending, 1)

	r.log.Debug().
		Stringer("watch", w).
		Uint64("callback", uint64(id)).
		Uint64("token", uint64(token)).
		Int64("pending", r.Pending()).
		Msg("watch registered")
	return nil
}

// Run invokes main and then dispatches completions until every registered
// task and watch has had its callback invoked. The calling goroutine is
// locked to its OS thread until Run returns.
//
// Run returns nil once nothing is pending. It returns early with an error if
// the readiness driver fails, if the runtime is closed, or if a completion
// names a callback that is not registered. A Runtime runs at most once.
func (r *Runtime) Run(main func(*Runtime)) error {
	if !atomic.CompareAndSwapUint32(&r.state, stateIdle, stateRunning) {
		return asyncerrors.ErrAlreadyRan
	}
	defer func() {
		atomic.StoreUint32(&r.state, stateTerminated)
		if r.Closed() {
			r.runClosers()
		}
	}()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if main != nil {
		main(r)
	}

	for r.Pending() > 0 {
		// Close wins over anything that is ready at the same time.
		if r.Closed() {
			return asyncerrors.ErrClosed
		}

		select {
		case token := <-r.driver.ready:
			if r.Closed() {
				return asyncerrors.ErrClosed
			}
			if err := r.onReady(token); err != nil {
				return err
			}
		case c := <-r.pool.results:
			if r.Closed() {
				return asyncerrors.ErrClosed
			}
			if err := r.onComplete(c); err != nil {
				return err
			}
		case err := <-r.driver.faults:
			return fmt.Errorf("%w: %w", asyncerrors.ErrDriverFailed, err)
		case <-r.closing:
			return asyncerrors.ErrClosed
		}
	}

	if r.Closed() {
		return asyncerrors.ErrClosed
	}

	r.log.Debug().Msg("finished")
	return nil
}

func (r *Runtime) onReady(token internal.Token) error {
	id, ok := r.watches[token]
	if !ok {
		// Already dispatched: a watch fires at most once.
		r.log.Debug().Uint64("token", uint64(token)).Msg("ignored readiness of a dispatched watch")
		return nil
	}
	delete(r.watches, token)

	cb, err := r.registry.take(id)
	if err != nil {
		return err
	}

	cb(Undefined())
	r.done()
	r.stats.recordWatch()
	return nil
}

func (r *Runtime) onComplete(c completion) error {
	// The worker is idle from the moment it reported, so it is available to
	// tasks registered by the callback.
	r.pool.release(c.worker)

	cb, err := r.registry.take(c.id)
	if err != nil {
		return err
	}

	r.stats.recordTask(c, time.Now())
	cb(c.value)
	r.done()
	return nil
}

func (r *Runtime) done() {
	if atomic.AddInt64(&r.pending, -1) < 0 {
		panic("asyncrt: pending operation counter went negative")
	}
}

// Pending returns the number of registered tasks and watches whose callback
// has not been invoked yet.
func (r *Runtime) Pending() int64 {
	return atomic.LoadInt64(&r.pending)
}

func (r *Runtime) Stats() Snapshot {
	return r.stats.snapshot()
}

// Report writes Stats to w.
func (r *Runtime) Report(w io.Writer) error {
	_, err := r.Stats().WriteTo(w)
	return err
}

// Close stops the driver and the workers. No callback is invoked once
// Close has been called, including from a callback: a Run in progress
// returns ErrClosed instead of dispatching anything else. Functions passed
// to OnClose and not yet cancelled are then run, on the loop goroutine if
// Run is in progress.
func (r *Runtime) Close() error {
	if !atomic.CompareAndSwapUint32(&r.closed, 0, 1) {
		return asyncerrors.ErrClosed
	}

	close(r.closing)
	err := r.driver.close()
	r.pool.close()

	if atomic.LoadUint32(&r.state) != stateRunning {
		r.runClosers()
	}
	return err
}

func (r *Runtime) Closed() bool {
	return atomic.LoadUint32(&r.closed) == 1
}

// OnClose registers fn to be run if the runtime is closed while fn is still
// registered. Producers use it to release the resources behind a watch whose
// callback will never run. The returned cancel unregisters fn; it is safe
// to call more than once.
//
// If the runtime is already closed fn runs straight away.
func (r *Runtime) OnClose(fn func()) (cancel func()) {
	r.mu.Lock()
	if r.closers == nil {
		r.mu.Unlock()
		fn()
		return func() {}
	}
	r.nextCloser++
	id := r.nextCloser
	r.closers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.closers != nil {
			delete(r.closers, id)
		}
		r.mu.Unlock()
	}
}

// runClosers runs every registered closer exactly once, whoever gets here
// first.
func (r *Runtime) runClosers() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	for _, fn := range closers {
		fn()
	}
}
