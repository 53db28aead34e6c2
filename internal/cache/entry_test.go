package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/cache"
)

func TestEntry_ReadUpdatesAccessBookkeeping(t *testing.T) {
	e := cache.NewEntry("/tmp/proj", time.Minute)

	before := e.AccessCount()

	err := e.Read(func(cache.Stores) error { return nil })
	require.NoError(t, err)
	require.Equal(t, before+1, e.AccessCount())
}

func TestEntry_IsExpired(t *testing.T) {
	e := cache.NewEntry("/tmp/proj", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	require.True(t, e.IsExpired(time.Now()))
}

func TestEntry_InvalidateClearsStores(t *testing.T) {
	e := cache.NewEntry("/tmp/proj", time.Minute)

	err := e.Write(func(s *cache.Stores) error {
		e.SetVersion("uuid-1", true)

		return nil
	})
	require.NoError(t, err)
	require.True(t, e.FTSAvailable())

	err = e.Write(func(*cache.Stores) error {
		e.Invalidate()

		return nil
	})
	require.NoError(t, err)
	require.False(t, e.FTSAvailable())
}

func TestManager_GetOrCreateReturnsSameEntry(t *testing.T) {
	m := cache.NewManager(time.Minute)

	a := m.GetOrCreate("/tmp/proj")
	b := m.GetOrCreate("/tmp/proj")
	require.Same(t, a, b)

	other := m.GetOrCreate("/tmp/other")
	require.NotSame(t, a, other)
}

func TestManager_DropAllInvalidatesEverything(t *testing.T) {
	m := cache.NewManager(time.Minute)

	e := m.GetOrCreate("/tmp/proj")
	require.NoError(t, e.Write(func(*cache.Stores) error {
		e.SetVersion("uuid-1", true)

		return nil
	}))

	m.DropAll()
	require.Empty(t, m.Snapshot())
}
