package asyncrt

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	DefaultWorkers      = 4
	DefaultDriverBuffer = 16
)

type OptionType uint8

const (
	TypeWorkers OptionType = iota
	TypeBacklog
	TypeLogger
	TypeDriverBuffer
	TypeStats
	MaxOption
)

func (t OptionType) String() string {
	switch t {
	case TypeWorkers:
		return "workers"
	case TypeBacklog:
		return "backlog"
	case TypeLogger:
		return "logger"
	case TypeDriverBuffer:
		return "driver_buffer"
	case TypeStats:
		return "stats"
	default:
		return "option_unknown"
	}
}

type Option interface {
	Type() OptionType
	Value() interface{}
}

type optionWorkers struct {
	v int
}

func (o *optionWorkers) Type() OptionType {
	return TypeWorkers
}

func (o *optionWorkers) Value() interface{} {
	return o.v
}

// Workers sets the fixed size of the worker pool.
func Workers(n int) Option {
	return &optionWorkers{
		v: n,
	}
}

type optionBacklog struct {
	v int
}

func (o *optionBacklog) Type() OptionType {
	return TypeBacklog
}

func (o *optionBacklog) Value() interface{} {
	return o.v
}

// Backlog lets up to n tasks wait for a worker instead of being rejected
// with ErrPoolExhausted. The default, 0, rejects as soon as every worker is
// busy.
func Backlog(n int) Option {
	return &optionBacklog{
		v: n,
	}
}

type optionLogger struct {
	v zerolog.Logger
}

func (o *optionLogger) Type() OptionType {
	return TypeLogger
}

func (o *optionLogger) Value() interface{} {
	return o.v
}

func Logger(l zerolog.Logger) Option {
	return &optionLogger{
		v: l,
	}
}

type optionDriverBuffer struct {
	v int
}

func (o *optionDriverBuffer) Type() OptionType {
	return TypeDriverBuffer
}

func (o *optionDriverBuffer) Value() interface{} {
	return o.v
}

// DriverBuffer sets the initial number of readiness events the driver can
// collect per wait. The buffer grows with the number of outstanding watches.
func DriverBuffer(n int) Option {
	return &optionDriverBuffer{
		v: n,
	}
}

type optionStats struct {
	v bool
}

func (o *optionStats) Type() OptionType {
	return TypeStats
}

func (o *optionStats) Value() interface{} {
	return o.v
}

// Stats enables latency histograms, see Runtime.Stats.
func Stats(v bool) Option {
	return &optionStats{
		v: v,
	}
}

type config struct {
	workers      int
	backlog      int
	log          zerolog.Logger
	driverBuffer int
	stats        bool
}

func newConfig(opts ...Option) (config, error) {
	cfg := config{
		workers:      DefaultWorkers,
		log:          zerolog.Nop(),
		driverBuffer: DefaultDriverBuffer,
	}

	for _, opt := range opts {
		switch t := opt.Type(); t {
		case TypeWorkers:
			cfg.workers = opt.Value().(int)
			if cfg.workers <= 0 {
				return cfg, fmt.Errorf("invalid worker count %d", cfg.workers)
			}
		case TypeBacklog:
			cfg.backlog = opt.Value().(int)
			if cfg.backlog < 0 {
				return cfg, fmt.Errorf("invalid backlog %d", cfg.backlog)
			}
		case TypeLogger:
			cfg.log = opt.Value().(zerolog.Logger)
		case TypeDriverBuffer:
			cfg.driverBuffer = opt.Value().(int)
			if cfg.driverBuffer <= 0 {
				return cfg, fmt.Errorf("invalid driver buffer %d", cfg.driverBuffer)
			}
		case TypeStats:
			cfg.stats = opt.Value().(bool)
		default:
			return cfg, fmt.Errorf("unsupported option %s", t)
		}
	}

	return cfg, nil
}
