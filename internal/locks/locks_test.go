package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	tbl := NewTable()
	release, err := tbl.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()

	release, err = tbl.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	tbl := NewTable()
	release, err := tbl.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tbl.Acquire(ctx, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	tbl := NewTable()
	r1, err := tbl.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := tbl.Acquire(ctx, "s2")
	require.NoError(t, err)
	r2()
}

func TestSerializesConcurrentHolders(t *testing.T) {
	tbl := NewTable()
	var (
		mu      sync.Mutex
		holders int
		maxSeen int
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := tbl.Acquire(context.Background(), "s1")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "at most one holder at a time")
}

func TestEntriesReclaimed(t *testing.T) {
	tbl := NewTable()
	release, err := tbl.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	assert.Empty(t, tbl.entries)
}
