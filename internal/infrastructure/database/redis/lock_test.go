package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
)

func newMockedLock(t *testing.T, ttl time.Duration) (*RunLock, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	client := &Client{
		rdb:    db,
		cfg:    config.RedisConfig{KeyPrefix: "test:"},
		logger: logging.NewNopLogger(),
	}
	lock := NewRunLock(client, ttl, logging.NewNopLogger())
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return lock, mock
}

func TestRunLock_TryAcquire(t *testing.T) {
	lock, mock := newMockedLock(t, time.Minute)
	mock.ExpectSetNX("test:run:lock", lock.value, time.Minute).SetVal(true)

	require.NoError(t, lock.TryAcquire(context.Background()))
}

func TestRunLock_TryAcquire_Held(t *testing.T) {
	lock, mock := newMockedLock(t, time.Minute)
	mock.ExpectSetNX("test:run:lock", lock.value, time.Minute).SetVal(false)

	err := lock.TryAcquire(context.Background())
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestRunLock_Release(t *testing.T) {
	lock, mock := newMockedLock(t, time.Minute)
	mock.ExpectEval(releaseScript, []string{"test:run:lock"}, lock.value).SetVal(int64(1))

	require.NoError(t, lock.Release(context.Background()))
}

func TestRunLock_Release_NotHeld(t *testing.T) {
	lock, mock := newMockedLock(t, time.Minute)
	mock.ExpectEval(releaseScript, []string{"test:run:lock"}, lock.value).SetVal(int64(0))

	err := lock.Release(context.Background())
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestRunLock_Extend(t *testing.T) {
	lock, mock := newMockedLock(t, time.Minute)
	mock.ExpectEval(extendScript, []string{"test:run:lock"}, lock.value, int64(30000)).SetVal(int64(1))

	require.NoError(t, lock.Extend(context.Background(), 30*time.Second))
}

func TestRunLock_DefaultTTL(t *testing.T) {
	lock, _ := newMockedLock(t, 0)
	assert.Equal(t, 30*time.Minute, lock.ttl)
}
