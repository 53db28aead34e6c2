package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayFor_FollowsScheduleThenClampsToLast(t *testing.T) {
	delays := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}

	require.Equal(t, 10*time.Millisecond, delayFor(delays, 0))
	require.Equal(t, 20*time.Millisecond, delayFor(delays, 1))
	require.Equal(t, 30*time.Millisecond, delayFor(delays, 2))
	require.Equal(t, 30*time.Millisecond, delayFor(delays, 10))
}

func TestDelayFor_EmptyScheduleUsesDefault(t *testing.T) {
	require.Equal(t, defaultRetryDelays[0], delayFor(nil, 0))
	require.Equal(t, defaultRetryDelays[len(defaultRetryDelays)-1], delayFor(nil, 50))
}
