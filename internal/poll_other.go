//go:build !linux && !darwin && !netbsd && !freebsd && !openbsd && !dragonfly

package internal

import "github.com/talostrading/asyncrt/asyncerrors"

func NewMultiplexer() (Multiplexer, error) {
	return nil, asyncerrors.ErrUnsupported
}
