package asyncrt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/talostrading/asyncrt/asyncerrors"
)

// A callback closes the runtime while the only worker has a backlog: the
// backlog is dropped and nothing is handed to a stopped worker.
func TestCloseFromCallbackWithBacklog(t *testing.T) {
	for i := 0; i < 50; i++ {
		rt := MustNew(Workers(1), Backlog(2))

		invoked := 0
		err := rt.Run(func(rt *Runtime) {
			for j := 0; j < 3; j++ {
				require.NoError(t, rt.RegisterWork(func() Value {
					return Undefined()
				}, TaskCompute, func(Value) {
					invoked++
					require.NoError(t, rt.Close())
				}))
			}
			require.Equal(t, 2, rt.pool.queued())
		})
		require.True(t, errors.Is(err, asyncerrors.ErrClosed))
		require.Equal(t, 1, invoked)

		require.True(t, errors.Is(rt.pool.submit(&task{fn: Undefined, id: 9}), asyncerrors.ErrClosed))
	}
}

// Results that are ready when a callback closes the runtime are not
// dispatched.
func TestNoCallbackAfterClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		rt := MustNew(Workers(2), Backlog(1))

		gate := make(chan struct{})
		invoked := 0
		err := rt.Run(func(rt *Runtime) {
			require.NoError(t, rt.RegisterWork(func() Value {
				return Undefined()
			}, TaskCompute, func(Value) {
				invoked++
				close(gate)
				// Let the second task report before closing.
				time.Sleep(5 * time.Millisecond)
				require.NoError(t, rt.Close())
			}))
			for j := 0; j < 2; j++ {
				require.NoError(t, rt.RegisterWork(func() Value {
					<-gate
					return Undefined()
				}, TaskCompute, func(Value) {
					invoked++
				}))
			}
		})
		require.True(t, errors.Is(err, asyncerrors.ErrClosed))
		require.Equal(t, 1, invoked)
	}
}

func TestNoWatchCallbackAfterClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		mux := newFakeMux()
		rt := newFakeRuntime(mux)

		invoked := 0
		cb := func(Value) {
			invoked++
			require.NoError(t, rt.Close())
		}
		err := rt.Run(func(rt *Runtime) {
			require.NoError(t, rt.RegisterWatch(Readable(3), cb))
			require.NoError(t, rt.RegisterWatch(Readable(4), cb))
			require.NoError(t, rt.RegisterWatch(Timeout(0), cb))
			mux.trigger(3)
			mux.trigger(4)
		})
		require.True(t, errors.Is(err, asyncerrors.ErrClosed))
		require.Equal(t, 1, invoked)
	}
}

func TestOnCloseRunsOutstandingClosers(t *testing.T) {
	mux := newFakeMux()
	rt := newFakeRuntime(mux)

	var kept, cancelled, done int
	err := rt.Run(func(rt *Runtime) {
		// Never fires.
		require.NoError(t, rt.RegisterWatch(Readable(3), func(Value) {}))
		rt.OnClose(func() { kept++ })

		cancel := rt.OnClose(func() { cancelled++ })
		cancel()
		cancel()

		finished := rt.OnClose(func() { done++ })
		require.NoError(t, rt.RegisterWatch(Timeout(time.Millisecond), func(Value) {
			finished()
			require.NoError(t, rt.RegisterWatch(Timeout(10*time.Millisecond), func(Value) {
				require.NoError(t, rt.Close())
			}))
		}))
	})
	require.True(t, errors.Is(err, asyncerrors.ErrClosed))

	require.Equal(t, 1, kept)
	require.Equal(t, 0, cancelled)
	require.Equal(t, 0, done)

	// Closed: runs straight away.
	late := 0
	rt.OnClose(func() { late++ })
	require.Equal(t, 1, late)
}

func TestOnCloseWithoutRun(t *testing.T) {
	rt := MustNew()

	ran := 0
	rt.OnClose(func() { ran++ })
	require.NoError(t, rt.Close())
	require.Equal(t, 1, ran)

	require.True(t, errors.Is(rt.Close(), asyncerrors.ErrClosed))
	require.Equal(t, 1, ran)
}

func TestOnCloseAfterRunFinished(t *testing.T) {
	rt := MustNew()

	ran := 0
	require.NoError(t, rt.Run(func(rt *Runtime) {
		rt.OnClose(func() { ran++ })
	}))
	require.Equal(t, 0, ran)

	require.NoError(t, rt.Close())
	require.Equal(t, 1, ran)
}

// More watches fire at once than the driver's initial buffer holds.
func TestDriverBufferGrows(t *testing.T) {
	rt := MustNew(DriverBuffer(1))
	defer rt.Close()

	const n = 100

	fired := make(map[int]int)
	err := rt.Run(func(rt *Runtime) {
		for i := 0; i < n; i++ {
			i := i
			require.NoError(t, rt.RegisterWatch(Timeout(20*time.Millisecond), func(v Value) {
				require.True(t, v.IsUndefined())
				fired[i]++
			}))
		}
		require.Equal(t, int64(n), rt.Pending())
	})
	require.NoError(t, err)

	require.Len(t, fired, n)
	for i, count := range fired {
		require.Equal(t, 1, count, "timer %d", i)
	}
	require.Equal(t, int64(0), rt.Pending())
	require.Empty(t, rt.watches)
}
