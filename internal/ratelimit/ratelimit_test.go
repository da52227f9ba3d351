package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := NewLimiter(10, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(), "request %d within burst", i)
	}
	assert.False(t, l.Allow(), "burst exhausted")
}

func TestLimiterRefills(t *testing.T) {
	l := NewLimiter(100, 1)

	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow(), "tokens refill over time")
}
