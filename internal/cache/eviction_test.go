package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/cache"
)

func TestEvictionThread_EvictsExpiredEntry(t *testing.T) {
	m := cache.NewManager(5 * time.Millisecond)
	m.GetOrCreate("/tmp/proj")

	thread := cache.NewEvictionThread(m, 10*time.Millisecond, zerolog.Nop())

	shutdownCalled := make(chan struct{}, 1)
	thread.AutoShutdownOnIdle = func() {
		select {
		case shutdownCalled <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go thread.Run(ctx)

	require.Eventually(t, func() bool {
		return len(m.Snapshot()) == 0
	}, 300*time.Millisecond, 5*time.Millisecond)

	select {
	case <-shutdownCalled:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected AutoShutdownOnIdle to fire once cache emptied")
	}
}
