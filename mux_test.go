package asyncrt

import (
	"sync"
	"time"

	"github.com/talostrading/asyncrt/internal"
)

// fakeMux is an in-memory Multiplexer. Timers fire through time.AfterFunc,
// read watches fire when trigger is called.
type fakeMux struct {
	mu     sync.Mutex
	fired  []internal.Token
	wakeup chan struct{}

	next  internal.Token
	reads map[int]internal.Token

	// repeat makes every fired token be reported that many extra times.
	repeat int

	// fail, once set, is returned by the next Wait.
	fail error

	closed bool
}

var _ internal.Multiplexer = &fakeMux{}

func newFakeMux() *fakeMux {
	return &fakeMux{
		wakeup: make(chan struct{}, 1),
		reads:  make(map[int]internal.Token),
	}
}

func (m *fakeMux) Add(w internal.Watch) (internal.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	token := m.next

	switch w.Interest {
	case internal.InterestTimer:
		time.AfterFunc(w.Timeout, func() { m.push(token) })
	case internal.InterestRead:
		m.reads[w.Fd] = token
	}
	return token, nil
}

// trigger makes the read watch on fd ready.
func (m *fakeMux) trigger(fd int) {
	m.mu.Lock()
	token, ok := m.reads[fd]
	delete(m.reads, fd)
	m.mu.Unlock()

	if ok {
		m.push(token)
	}
}

func (m *fakeMux) failWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
	_ = m.Wake()
}

func (m *fakeMux) push(token internal.Token) {
	m.mu.Lock()
	for i := 0; i <= m.repeat; i++ {
		m.fired = append(m.fired, token)
	}
	m.mu.Unlock()
	_ = m.Wake()
}

func (m *fakeMux) Wait(ready []internal.Token) (int, error) {
	for {
		m.mu.Lock()
		if err := m.fail; err != nil {
			m.mu.Unlock()
			return 0, err
		}
		if len(m.fired) > 0 {
			n := copy(ready, m.fired)
			m.fired = m.fired[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		<-m.wakeup

		m.mu.Lock()
		empty := len(m.fired) == 0 && m.fail == nil
		m.mu.Unlock()
		if empty {
			return 0, nil
		}
	}
}

func (m *fakeMux) Wake() error {
	select {
	case m.wakeup <- struct{}{}:
	default:
	}
	return nil
}

func (m *fakeMux) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func newFakeRuntime(mux *fakeMux, opts ...Option) *Runtime {
	cfg, err := newConfig(opts...)
	if err != nil {
		panic(err)
	}
	return newRuntime(cfg, mux)
}
