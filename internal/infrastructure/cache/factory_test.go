package cache

import (
	"context"
	"testing"

	"github.com/pass/deposit-services/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// port 1 refuses connections on loopback
var unreachableRedis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

func TestIdempotencyStoreFactory_Memory(t *testing.T) {
	f := NewIdempotencyStoreFactory(config.RedisConfig{}, config.CallbackConfig{IdempotencyBackend: BackendMemory})

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
}

func TestIdempotencyStoreFactory_RedisUnavailableWithoutFallback(t *testing.T) {
	f := NewIdempotencyStoreFactory(unreachableRedis, config.CallbackConfig{IdempotencyBackend: BackendRedis})

	store, err := f.CreateStore(context.Background())
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "redis idempotency store unavailable")
}

func TestIdempotencyStoreFactory_RedisUnavailableWithFallback(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := NewIdempotencyStoreFactory(unreachableRedis,
		config.CallbackConfig{IdempotencyBackend: BackendRedis},
		WithLogger(zap.New(core)),
		WithInMemoryFallback(true),
	)

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	assert.Equal(t, 1, logs.FilterMessageSnippet("falling back").Len())
}

func TestIdempotencyStoreFactory_UnknownBackend(t *testing.T) {
	f := NewIdempotencyStoreFactory(config.RedisConfig{}, config.CallbackConfig{IdempotencyBackend: "etcd"})

	_, err := f.CreateStore(context.Background())
	assert.ErrorContains(t, err, `unknown idempotency backend "etcd"`)
}

func TestRedisIdempotencyStore_ErrorsWrapKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: unreachableRedis.Addr(), MaxRetries: -1})
	store := NewRedisIdempotencyStoreWithClient(client, "")
	defer store.Close()

	assert.Equal(t, DefaultCallbackKeyPrefix, store.keyPrefix)

	ctx := context.Background()
	_, err := store.MarkProcessed(ctx, "cb-1", 0)
	assert.ErrorContains(t, err, `callback "cb-1"`)

	err = store.Forget(ctx, "cb-1")
	assert.ErrorContains(t, err, `forget callback "cb-1"`)

	_, err = store.IsProcessed(ctx, "cb-1")
	assert.ErrorContains(t, err, `check callback "cb-1"`)
}
