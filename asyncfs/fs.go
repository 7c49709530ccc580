// Package asyncfs reads files on the runtime's worker pool.
package asyncfs

import (
	"os"
	"time"

	"github.com/talostrading/asyncrt"
	"github.com/valyala/bytebufferpool"
)

// DefaultLatency is added to every Read to make slow storage observable.
var DefaultLatency = 2 * time.Second

// Read reads the whole file at path on a worker. cb receives the content as
// Text, or a Failure if the file could not be read.
func Read(rt *asyncrt.Runtime, path string, cb asyncrt.Callback) error {
	return ReadWithLatency(rt, path, DefaultLatency, cb)
}

// ReadWithLatency is Read with an explicit simulated latency. A latency of
// zero reads straight away.
func ReadWithLatency(rt *asyncrt.Runtime, path string, latency time.Duration, cb asyncrt.Callback) error {
	return rt.RegisterWork(func() asyncrt.Value {
		if latency > 0 {
			time.Sleep(latency)
		}

		text, err := readFile(path)
		if err != nil {
			return asyncrt.Failure(err)
		}
		return asyncrt.Text(text)
	}, asyncrt.TaskFileRead, cb)
}

func readFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)

	if _, err := b.ReadFrom(f); err != nil {
		return "", err
	}
	return b.String(), nil
}
