// Package asyncnet drives network I/O and timers through the runtime's
// readiness driver.
package asyncnet

import (
	"bufio"
	"net/http"
	"strings"
	"time"

	"github.com/talostrading/asyncrt"
)

// Timeout invokes cb with Undefined once d has elapsed.
func Timeout(rt *asyncrt.Runtime, d time.Duration, cb asyncrt.Callback) error {
	return rt.RegisterWatch(asyncrt.Timeout(d), cb)
}

// ParseResponse parses the raw text HTTPGet delivers.
func ParseResponse(raw string) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), nil)
}
