// Package rand generates credentials for scaffolded tenant entries.
package rand

import (
	"crypto/rand"
	"math/big"
)

// alphanumeric only, so generated values survive YAML and DSN quoting
const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewPassword returns a cryptographically random password of the given
// length. Lengths below 1 fall back to 24.
func NewPassword(length int) string {
	if length < 1 {
		length = 24
	}

	max := big.NewInt(int64(len(passwordCharset)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = passwordCharset[n.Int64()]
	}
	return string(b)
}
