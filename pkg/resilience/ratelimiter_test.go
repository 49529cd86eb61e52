package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenDenies(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "burst of 2 exhausted")
}
