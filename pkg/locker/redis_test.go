//go:build integration

package locker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *Redis {
	t.Helper()

	ctx := t.Context()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	locker, err := NewRedis(ctx, "redis://"+endpoint+"/0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	t.Cleanup(func() { _ = locker.Close() })

	return locker
}

func TestRedis_LockUnlock(t *testing.T) {
	locker := setupRedis(t)

	unlock, err := locker.Lock(t.Context(), ContactKey("ch", "psid"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, ContactKey("ch", "psid"))
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()

	again, err := locker.Lock(t.Context(), ContactKey("ch", "psid"))
	require.NoError(t, err)
	again()
}

func TestRedis_ReleaseOnlyOwnToken(t *testing.T) {
	locker := setupRedis(t)
	key := ContactKey("ch", "other")

	unlock, err := locker.Lock(t.Context(), key)
	require.NoError(t, err)

	locker.release(key, "not-the-owner")

	exists, err := locker.client.Exists(t.Context(), key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	unlock()
}
