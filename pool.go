package asyncrt

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"github.com/talostrading/asyncrt/asyncerrors"
)

type worker struct {
	id int

	// tasks holds at most one task: a worker is handed a task only while it
	// is off the free-list.
	tasks chan *task
}

// pool is a fixed set of workers. Only the loop goroutine calls submit and
// release; close may come from anywhere. Workers only talk back through
// results.
type pool struct {
	workers []*worker

	// free is a LIFO stack of idle worker indices. A worker index is on it
	// if and only if that worker holds no task.
	free []int

	// results is sized to the pool, so a worker never blocks reporting.
	results chan completion

	// backlog is nil unless the Backlog option is set.
	backlog    *queue.Queue
	backlogCap int

	// mu orders close against submit and release: no task is handed to a
	// worker once its tasks channel is closed.
	mu     sync.Mutex
	closed bool

	wg  sync.WaitGroup
	log zerolog.Logger
}

func newPool(size, backlog int, log zerolog.Logger) *pool {
	p := &pool{
		workers:    make([]*worker, size),
		free:       make([]int, 0, size),
		results:    make(chan completion, size),
		backlogCap: backlog,
		log:        log,
	}
	if backlog > 0 {
		p.backlog = queue.New()
	}

	for i := 0; i < size; i++ {
		w := &worker{
			id:    i,
			tasks: make(chan *task, 1),
		}
		p.workers[i] = w
		p.free = append(p.free, i)

		p.wg.Add(1)
		go p.work(w)
	}

	return p
}

func (p *pool) work(w *worker) {
	defer p.wg.Done()

	log := p.log.With().Int("worker", w.id).Logger()

	for t := range w.tasks {
		log.Debug().
			Stringer("kind", t.kind).
			Uint64("callback", uint64(t.id)).
			Msg("received task")

		start := time.Now()
		v := t.run()
		done := time.Now()

		log.Debug().
			Stringer("kind", t.kind).
			Uint64("callback", uint64(t.id)).
			Dur("elapsed", done.Sub(start)).
			Msg("finished task")

		p.results <- completion{
			worker:  w.id,
			id:      t.id,
			kind:    t.kind,
			value:   v,
			elapsed: done.Sub(start),
			done:    done,
		}
	}
}

// submit hands t to an idle worker. There is no fairness between workers:
// the most recently released one is picked first.
func (p *pool) submit(t *task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return asyncerrors.ErrClosed
	}

	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.workers[idx].tasks <- t
		return nil
	}

	if p.backlog != nil && p.backlog.Length() < p.backlogCap {
		p.backlog.Add(t)
		return nil
	}

	return asyncerrors.ErrPoolExhausted
}

// release is called once the loop has received the completion of worker
// idx. The oldest backlogged task, if any, goes straight to that worker.
// Once the pool is closed release does nothing.
func (p *pool) release(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if p.backlog != nil && p.backlog.Length() > 0 {
		p.workers[idx].tasks <- p.backlog.Remove().(*task)
		return
	}
	p.free = append(p.free, idx)
}

func (p *pool) idle() int {
	return len(p.free)
}

func (p *pool) queued() int {
	if p.backlog == nil {
		return 0
	}
	return p.backlog.Length()
}

func (p *pool) size() int {
	return len(p.workers)
}

// close stops the workers once their current task, if any, is done.
// Backlogged tasks never run.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, w := range p.workers {
		close(w.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
