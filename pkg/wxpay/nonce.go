package wxpay

import (
	"fmt"
	"io"
)

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// nonceLimit is the largest multiple of the alphabet size that fits in a
// byte. Bytes at or above it are discarded so every character is equally likely.
const nonceLimit = 256 - 256%len(nonceAlphabet)

// NewNonce returns n alphanumeric characters drawn from r.
func NewNonce(n int, r io.Reader) (string, error) {
	if n <= 0 {
		return "", argErrorf("nonce length must be positive")
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= nonceLimit {
				continue
			}
			out = append(out, nonceAlphabet[int(b)%len(nonceAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
