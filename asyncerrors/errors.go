package asyncerrors

import "errors"

var (
	ErrPoolExhausted   = errors.New("no idle worker available")                  // every worker is busy and the backlog, if any, is full
	ErrUnknownCallback = errors.New("callback not registered or already taken") // a completion referenced a callback identity the registry does not hold
	ErrAlreadyWatched  = errors.New("resource already watched")
	ErrDriverStopped   = errors.New("readiness driver stopped")
	ErrDriverFailed    = errors.New("readiness driver failed")
	ErrUnsupported     = errors.New("readiness multiplexer not supported on this platform")
	ErrAlreadyRan      = errors.New("runtime already ran")
	ErrClosed          = errors.New("runtime closed")
	ErrTaskPanicked    = errors.New("task panicked")
	ErrInvalidWatch    = errors.New("invalid watch")
)
