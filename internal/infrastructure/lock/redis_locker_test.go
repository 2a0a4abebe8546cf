package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-fifo/internal/domain"
)

// Requiere FIFO_TEST_REDIS_URL (p. ej. redis://localhost:6379/15).
func newTestRedisLocker(t *testing.T, timeout time.Duration) *RedisLocker {
	t.Helper()
	url := os.Getenv("FIFO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FIFO_TEST_REDIS_URL no definido")
	}
	client, err := NewRedisClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	prefix := "fifo:test:" + t.Name() + ":"
	return NewRedisLocker(client, prefix, timeout, 5*time.Second, zerolog.Nop())
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	l := newTestRedisLocker(t, 200*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "SKU-1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "SKU-1")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	unlock()
	unlock()

	again, err := l.Lock(ctx, "SKU-1")
	require.NoError(t, err)
	again()
}
