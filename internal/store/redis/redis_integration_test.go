package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukkan/backend/internal/store"
	"dukkan/backend/internal/store/storetest"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("DUKKAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set DUKKAN_TEST_REDIS_ADDR to run redis integration test")
	}

	prefix := fmt.Sprintf("dukkan-test-%d", time.Now().UnixNano())
	s := New(addr, os.Getenv("DUKKAN_TEST_REDIS_PASSWORD"), 0, prefix)
	require.NoError(t, s.Ping(context.Background()))

	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := s.client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
		_ = s.Close()
	})
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, newIntegrationStore(t))
}

func TestAtomicFailsWhenLockIsHeld(t *testing.T) {
	s := newIntegrationStore(t)
	s.lockWait = 50 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, s.client.Set(ctx, s.lockKey(), "someone-else", time.Minute).Err())

	err := s.Atomic(ctx, func(context.Context, store.Backend) error { return nil })
	assert.ErrorIs(t, err, store.ErrConflict)
}
