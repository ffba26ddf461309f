package auction

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestListingLocks(t *testing.T) {
	t.Parallel()

	locks := newListingLocks()
	var counts [2]int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			unlock := locks.Lock(id)
			defer unlock()
			counts[id]++
		}(uint64(i % 2))
	}
	wg.Wait()

	require.Equal(t, 50, counts[0])
	require.Equal(t, 50, counts[1])
	require.Equal(t, 0, locks.size())
}

func TestSeenKeys(t *testing.T) {
	t.Parallel()

	preloaded := uuid.NewString()
	seen := newSeenKeys([]string{preloaded})
	require.True(t, seen.MaybeSeen(preloaded))

	key := uuid.NewString()
	require.False(t, seen.MaybeSeen(key))
	seen.Add(key)
	require.True(t, seen.MaybeSeen(key))
}
