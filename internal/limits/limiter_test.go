package limits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByIP_BurstThenRejects(t *testing.T) {
	b := NewByIP(1000)
	require.True(t, b.Allow("1.2.3.4", 1000))
	require.False(t, b.Allow("1.2.3.4", 1))
}

func TestByIP_IndependentPerIP(t *testing.T) {
	b := NewByIP(1000)
	require.True(t, b.Allow("1.2.3.4", 1000))
	require.True(t, b.Allow("5.6.7.8", 1000))
}

func TestByIP_OversizedRequestRejected(t *testing.T) {
	b := NewByIP(1000)
	require.False(t, b.Allow("1.2.3.4", 1001))
}

func TestByIP_RemoveResetsBucket(t *testing.T) {
	b := NewByIP(1000)
	require.True(t, b.Allow("1.2.3.4", 1000))
	require.False(t, b.Allow("1.2.3.4", 1))
	b.Remove("1.2.3.4")
	require.True(t, b.Allow("1.2.3.4", 1000))
}
