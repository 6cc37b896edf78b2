package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPassword(t *testing.T) {
	p := NewPassword(32)
	assert.Len(t, p, 32)
	for _, c := range p {
		assert.Contains(t, passwordCharset, string(c))
	}

	// two draws colliding would mean the generator is broken
	assert.NotEqual(t, NewPassword(32), NewPassword(32))
}

func TestNewPasswordDefaultLength(t *testing.T) {
	assert.Len(t, NewPassword(0), 24)
	assert.Len(t, NewPassword(-5), 24)
}
