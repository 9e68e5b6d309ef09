package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSessionID(t *testing.T) {
	assert.Equal(t, "****", MaskSessionID(""))
	assert.Equal(t, "****", MaskSessionID("abcd"))
	assert.Equal(t, "abcd***", MaskSessionID("abcdef-123456"))
	assert.Equal(t, "abcd***", MaskSessionID("  abcdef  "))
}
