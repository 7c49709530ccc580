package asyncrt

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	histMin       = 1                                    // 1µs
	histMax       = int64(time.Hour / time.Microsecond) // 1h
	histPrecision = 3
)

// Latency summarises a histogram of durations.
type Latency struct {
	Count int64
	Min   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Snapshot is a point-in-time view of a Runtime's completions.
type Snapshot struct {
	Tasks   uint64 // task completions dispatched
	Watches uint64 // watch completions dispatched
	Failed  uint64 // task completions that carried a Failure

	// Execution is the time workers spent running tasks.
	Execution Latency

	// Dispatch is the time between a worker finishing a task and the loop
	// invoking its callback.
	Dispatch Latency
}

type stats struct {
	mu sync.Mutex

	tasks, watches, failed uint64

	// nil unless the Stats option is set.
	execution, dispatch *hdrhistogram.Histogram
}

func newStats(histograms bool) *stats {
	s := &stats{}
	if histograms {
		s.execution = hdrhistogram.New(histMin, histMax, histPrecision)
		s.dispatch = hdrhistogram.New(histMin, histMax, histPrecision)
	}
	return s
}

func (s *stats) recordTask(c completion, dispatched time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks++
	if c.value.Kind() == ValueError {
		s.failed++
	}
	if s.execution != nil {
		_ = s.execution.RecordValue(micros(c.elapsed))
		_ = s.dispatch.RecordValue(micros(dispatched.Sub(c.done)))
	}
}

func (s *stats) recordWatch() {
	s.mu.Lock()
	s.watches++
	s.mu.Unlock()
}

func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Tasks:     s.tasks,
		Watches:   s.watches,
		Failed:    s.failed,
		Execution: summarise(s.execution),
		Dispatch:  summarise(s.dispatch),
	}
}

// Values outside the histogram range are clamped rather than dropped.
func micros(d time.Duration) int64 {
	us := int64(d / time.Microsecond)
	if us < histMin {
		return histMin
	}
	if us > histMax {
		return histMax
	}
	return us
}

func summarise(h *hdrhistogram.Histogram) Latency {
	if h == nil || h.TotalCount() == 0 {
		return Latency{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Latency{
		Count: h.TotalCount(),
		Min:   us(h.Min()),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtPercentile(50)),
		P90:   us(h.ValueAtPercentile(90)),
		P99:   us(h.ValueAtPercentile(99)),
		Max:   us(h.Max()),
	}
}

// WriteTo renders the snapshot as a table.
func (s Snapshot) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tabw := tabwriter.NewWriter(cw, 2, 2, 2, byte(' '), 0)

	fmt.Fprintf(tabw, "tasks=%d watches=%d failed=%d\n\n", s.Tasks, s.Watches, s.Failed)
	fmt.Fprint(tabw, "latency\tcount\tmin\tmean\tp50\tp90\tp99\tmax\n")
	for _, row := range []struct {
		name string
		l    Latency
	}{
		{"execution", s.Execution},
		{"dispatch", s.Dispatch},
	} {
		fmt.Fprintf(tabw, "%s\t%d\t%v\t%v\t%v\t%v\t%v\t%v\n",
			row.name, row.l.Count, row.l.Min, row.l.Mean, row.l.P50, row.l.P90, row.l.P99, row.l.Max)
	}

	err := tabw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
