package locker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := NewMemory()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := locker.Lock(t.Context(), "contact")
			if !assert.NoError(t, err) {
				return
			}

			current := inside.Add(1)
			if current > maxSeen.Load() {
				maxSeen.Store(current)
			}

			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Empty(t, locker.locks)
}

func TestMemory_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	locker := NewMemory()

	unlockA, err := locker.Lock(t.Context(), "a")
	require.NoError(t, err)

	defer unlockA()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestMemory_Timeout(t *testing.T) {
	t.Parallel()

	locker := NewMemory()

	unlock, err := locker.Lock(t.Context(), "contact")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "contact")
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()

	again, err := locker.Lock(t.Context(), "contact")
	require.NoError(t, err)
	again()
	assert.NoError(t, locker.Close())
}

func TestContactKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dmflow:lock:contact:ch-1:psid", ContactKey("ch-1", "psid"))
}
