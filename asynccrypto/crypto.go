// Package asynccrypto runs CPU-bound computations on the runtime's worker
// pool.
package asynccrypto

import (
	"encoding/hex"

	"github.com/talostrading/asyncrt"
	"golang.org/x/crypto/blake2b"
)

// Encrypt "encrypts" n by computing the n-th Fibonacci number the slow,
// recursive way. cb receives an Integer.
func Encrypt(rt *asyncrt.Runtime, n uint64, cb asyncrt.Callback) error {
	return rt.RegisterWork(func() asyncrt.Value {
		return asyncrt.Integer(fibonacci(n))
	}, asyncrt.TaskEncrypt, cb)
}

func fibonacci(n uint64) uint64 {
	if n < 2 {
		return n
	}
	return fibonacci(n-1) + fibonacci(n-2)
}

// Digest computes the hex encoded BLAKE2b-256 digest of data. data is copied,
// so the caller may reuse it as soon as Digest returns.
func Digest(rt *asyncrt.Runtime, data []byte, cb asyncrt.Callback) error {
	b := append([]byte(nil), data...)
	return rt.RegisterWork(func() asyncrt.Value {
		sum := blake2b.Sum256(b)
		return asyncrt.Text(hex.EncodeToString(sum[:]))
	}, asyncrt.TaskDigest, cb)
}
