package asyncfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/talostrading/asyncrt"
)

const content = "Hello world! This is a text to encrypt!"

func writeTestFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Two concurrent reads of the same file each deliver its length.
func TestConcurrentReads(t *testing.T) {
	if testing.Short() {
		t.Skip("takes 2s")
	}
	testConcurrentReads(t, DefaultLatency)
}

func TestConcurrentReadsShort(t *testing.T) {
	testConcurrentReads(t, 100*time.Millisecond)
}

func testConcurrentReads(t *testing.T, latency time.Duration) {
	path := writeTestFile(t)

	rt := asyncrt.MustNew(asyncrt.Workers(2))
	defer rt.Close()

	var lengths []int
	start := time.Now()
	err := rt.Run(func(rt *asyncrt.Runtime) {
		for i := 0; i < 2; i++ {
			require.NoError(t, ReadWithLatency(rt, path, latency, func(v asyncrt.Value) {
				text, ok := v.AsText()
				require.True(t, ok, "unexpected value %s", v)
				lengths = append(lengths, len(text))
			}))
		}
	})
	require.NoError(t, err)

	require.Equal(t, []int{len(content), len(content)}, lengths)
	require.Equal(t, int64(0), rt.Pending())

	// Both reads ran side by side.
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, latency)
	require.Less(t, elapsed, 2*latency)
}

func TestReadMissingFile(t *testing.T) {
	rt := asyncrt.MustNew()
	defer rt.Close()

	var got asyncrt.Value
	err := rt.Run(func(rt *asyncrt.Runtime) {
		path := filepath.Join(t.TempDir(), "missing.txt")
		require.NoError(t, ReadWithLatency(rt, path, 0, func(v asyncrt.Value) { got = v }))
	})
	require.NoError(t, err)
	require.Equal(t, asyncrt.ValueError, got.Kind())
	require.True(t, errors.Is(got.Err(), fs.ErrNotExist))
}
