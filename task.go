package asyncrt

import (
	"fmt"
	"time"

	"github.com/talostrading/asyncrt/asyncerrors"
)

// TaskKind tags a task for diagnostics. It has no effect on scheduling.
type TaskKind uint8

const (
	TaskCompute TaskKind = iota
	TaskFileRead
	TaskEncrypt
	TaskDigest
)

func (k TaskKind) String() string {
	switch k {
	case TaskCompute:
		return "compute"
	case TaskFileRead:
		return "file_read"
	case TaskEncrypt:
		return "encrypt"
	case TaskDigest:
		return "digest"
	default:
		return "task_unknown"
	}
}

type task struct {
	fn   func() Value
	id   CallbackID
	kind TaskKind
}

// completion is what a worker reports back to the loop once a task is done.
type completion struct {
	worker  int
	id      CallbackID
	kind    TaskKind
	value   Value
	elapsed time.Duration
	done    time.Time
}

// run executes the task. A panic is reported as a Failure so the worker
// survives it and the callback still fires.
func (t *task) run() (v Value) {
	defer func() {
		if r := recover(); r != nil {
			v = Failure(fmt.Errorf("%w: kind=%s: %v", asyncerrors.ErrTaskPanicked, t.kind, r))
		}
	}()
	return t.fn()
}
