package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Acquire(ctx, AccountKey(1))
			require.NoError(t, err)
			counter++
			require.NoError(t, release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	release1, err := km.Acquire(ctx, AccountKey(1))
	require.NoError(t, err)
	defer release1(ctx)

	// A different key is not blocked by the first holder.
	done := make(chan struct{})
	go func() {
		release2, err := km.Acquire(ctx, AccountKey(2))
		assert.NoError(t, err)
		release2(ctx)
		close(done)
	}()
	<-done
}

func TestAccountKey(t *testing.T) {
	assert.Equal(t, "ledger:lock:account:42", AccountKey(42))
}
