package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocks(t *testing.T) {
	t.Run("should serialize holders of the same key", func(t *testing.T) {
		// given
		locks := NewKeyedLocks()
		unlock, err := locks.Lock(context.Background(), 1)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// when
		_, blockedErr := locks.Lock(ctx, 1)
		otherUnlock, otherErr := locks.Lock(context.Background(), 2)

		// then
		assert.ErrorIs(t, blockedErr, context.Canceled)
		require.NoError(t, otherErr)
		otherUnlock()
		unlock()
		assert.Zero(t, locks.Len())
	})

	t.Run("should hand the lock over after unlock", func(t *testing.T) {
		// given
		locks := NewKeyedLocks()
		unlock, err := locks.Lock(context.Background(), 1)
		require.NoError(t, err)
		acquired := make(chan struct{})
		go func() {
			second, err := locks.Lock(context.Background(), 1)
			if err == nil {
				second()
			}
			close(acquired)
		}()

		// when
		unlock()

		// then
		<-acquired
	})
}
