package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("abc"))
	assert.Equal(t, "abc", b.String())
	assert.False(t, b.Truncated())

	_, _ = b.Write([]byte("defghij"))
	assert.Equal(t, "cdefghij", b.String())
	assert.True(t, b.Truncated())
}

func TestTailBufferDefaultSize(t *testing.T) {
	b := newTailBuffer(0)
	assert.Equal(t, defaultOutputTailBytes, b.maxBytes)
}
