package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewULID_Monotonic(t *testing.T) {
	previous := NewULID()
	for i := 0; i < 100; i++ {
		next := NewULID()
		assert.Len(t, next, 26)
		assert.True(t, next > previous)
		assert.Equal(t, strings.ToLower(next), next)
		previous = next
	}
}

func TestNewWorkerName(t *testing.T) {
	a := NewWorkerName("scale-messaging")
	b := NewWorkerName("scale-messaging")
	assert.True(t, strings.HasPrefix(a, "scale-messaging-"))
	assert.NotEqual(t, a, b)
}
