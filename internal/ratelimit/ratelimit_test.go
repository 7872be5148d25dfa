package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(5, time.Hour)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("conn-1"), "call %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("conn-1"), "call over the limit must be rejected")
	assert.False(t, l.Allow("conn-1"), "rejection persists for the rest of the window")
}

func TestWindowResetAllowsAgain(t *testing.T) {
	l := New(2, time.Hour)
	defer l.Stop()

	require.True(t, l.Allow("c"))
	require.True(t, l.Allow("c"))
	require.False(t, l.Allow("c"))

	l.advance()
	assert.True(t, l.Allow("c"), "first call in a new window is allowed")
}

func TestConnectionsCountedIndependently(t *testing.T) {
	l := New(1, time.Hour)
	defer l.Stop()

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "another connection has its own budget")
	assert.False(t, l.Allow("a"))
}

func TestForget(t *testing.T) {
	l := New(1, time.Hour)
	defer l.Stop()

	require.True(t, l.Allow("c"))
	require.False(t, l.Allow("c"))

	l.Forget("c")
	assert.True(t, l.Allow("c"), "a forgotten connection starts fresh")
}

func TestDefaults(t *testing.T) {
	l := New(0, 0)
	defer l.Stop()

	assert.Equal(t, DefaultLimit, l.Limit())
	assert.Equal(t, DefaultInterval, l.Interval())
}

func TestExactBudgetPerWindow(t *testing.T) {
	const limit = 10
	l := New(limit, time.Hour)
	defer l.Stop()

	for window := 0; window < 3; window++ {
		allowed := 0
		for i := 0; i < limit+5; i++ {
			if l.Allow("c") {
				allowed++
			}
		}
		assert.Equal(t, limit, allowed, fmt.Sprintf("window %d", window))
		l.advance()
	}
}
