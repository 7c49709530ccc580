//go:build !(darwin || netbsd || freebsd || openbsd || dragonfly || linux)

package asyncnet

import (
	"github.com/talostrading/asyncrt"
	"github.com/talostrading/asyncrt/asyncerrors"
)

func HTTPGet(rt *asyncrt.Runtime, addr, path string, cb asyncrt.Callback) error {
	return asyncerrors.ErrUnsupported
}
