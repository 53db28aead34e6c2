package client

import "time"

// defaultRetryDelays is used when no config.json overrides it (spec
// §4.11): [100ms, 500ms, 1s, 2s].
var defaultRetryDelays = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

// delayFor returns the sleep before retry attempt n (0-based), clamping to
// the last configured delay once attempts exceed the schedule's length -
// the spec's schedule is a ceiling on patience, not a hard attempt limit.
func delayFor(delays []time.Duration, n int) time.Duration {
	if len(delays) == 0 {
		delays = defaultRetryDelays
	}

	if n >= len(delays) {
		n = len(delays) - 1
	}

	return delays[n]
}
