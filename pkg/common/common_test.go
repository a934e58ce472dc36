package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteermatching/volops/pkg/types"
)

func newTestRedis(t *testing.T) *RedisClient {
	t.Helper()

	s := miniredis.RunT(t)
	rdb, err := NewRedisClient(types.RedisConfig{
		Addrs: []string{s.Addr()},
		Mode:  types.RedisModeSingle,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestConfigManager_Defaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(configJSONEnv, "")

	cm, err := NewConfigManager[types.AppConfig]()
	require.NoError(t, err)
	config := cm.GetConfig()

	assert.True(t, config.IsLocalMode())
	assert.Equal(t, 5000, config.Gateway.HTTP.Port)
	assert.Equal(t, 30*time.Second, config.Gateway.ShutdownTimeout)
	assert.Equal(t, 10, config.Pagination.DefaultPerPage)
	assert.Equal(t, 100, config.Pagination.MaxPerPage)
	assert.Equal(t, []string{"One-time", "Weekly", "Monthly"}, config.Seed.Frequencies)
	assert.Equal(t, types.IndexBackendSQLite, config.Index.Backend)
}

func TestConfigManager_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: remote
gateway:
  http:
    port: 8080
seed:
  partners:
    - name: Ocean Corp
      tags: [ocean, cleanup]
`), 0o644))

	t.Setenv(configPathEnv, path)
	t.Setenv(configJSONEnv, `{"gateway": {"http": {"port": 9090}}, "sync": {"retryDelay": "750ms"}}`)

	cm, err := NewConfigManager[types.AppConfig]()
	require.NoError(t, err)
	config := cm.GetConfig()

	assert.Equal(t, types.ModeRemote, config.Mode)
	assert.Equal(t, 9090, config.Gateway.HTTP.Port)
	assert.Equal(t, 750*time.Millisecond, config.Sync.RetryDelay)
	require.Len(t, config.Seed.Partners, 1)
	assert.Equal(t, "Ocean Corp", config.Seed.Partners[0].Name)
	assert.Equal(t, []string{"ocean", "cleanup"}, config.Seed.Partners[0].Tags)

	require.NoError(t, cm.Set("gateway.http.port", 7070))
	assert.Equal(t, 7070, cm.GetConfig().Gateway.HTTP.Port)
}

func TestRedisLock(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	key := Keys.GatewayInitLock("test")

	first := NewRedisLock(rdb)
	second := NewRedisLock(rdb)

	require.NoError(t, first.Acquire(ctx, key, RedisLockOptions{TtlS: 10}))
	assert.ErrorIs(t, second.Acquire(ctx, key, RedisLockOptions{TtlS: 10}), ErrLockNotObtained)

	require.NoError(t, first.Release(key))
	require.NoError(t, second.Acquire(ctx, key, RedisLockOptions{TtlS: 10}))
	require.NoError(t, second.Release(key))

	// Releasing an unknown key is a no-op
	assert.NoError(t, first.Release("volops:missing"))
}

func TestEventStream_AckOnlyHandledMessages(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	stream := NewEventStream(rdb, Keys.IndexOutbox(), "group", "consumer-1")
	require.NoError(t, stream.EnsureGroup(ctx))
	require.NoError(t, stream.EnsureGroup(ctx), "creating an existing group is not an error")

	_, err := stream.Emit(ctx, map[string]any{"n": "1"})
	require.NoError(t, err)
	_, err = stream.Emit(ctx, map[string]any{"n": "2"})
	require.NoError(t, err)

	n, err := stream.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msgs, err := stream.Read(ctx, false, 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var seen []string
	acked := stream.Process(ctx, msgs, func(ctx context.Context, id string, data map[string]any) error {
		seen = append(seen, data["n"].(string))
		if data["n"] == "2" {
			return errors.New("not yet")
		}
		return nil
	})
	assert.Equal(t, 1, acked)
	assert.Equal(t, []string{"1", "2"}, seen)

	// Nothing new, but the failed message is still pending for this consumer
	msgs, err = stream.Read(ctx, false, 10, -1)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	pending, err := stream.Read(ctx, true, 10, -1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "2", pending[0].Values["n"])
}

func TestEventStream_ConsumeStopsOnCancel(t *testing.T) {
	rdb := newTestRedis(t)
	stream := NewEventStream(rdb, Keys.IndexOutbox(), "group", "consumer-1")

	ctx, cancel := context.WithCancel(context.Background())
	handled := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		stream.Consume(ctx, 20*time.Millisecond, func(ctx context.Context, id string, data map[string]any) error {
			handled <- data["n"].(string)
			return nil
		})
	}()

	_, err := stream.Emit(context.Background(), map[string]any{"n": "1"})
	require.NoError(t, err)

	select {
	case n := <-handled:
		assert.Equal(t, "1", n)
	case <-time.After(5 * time.Second):
		t.Fatal("message was not consumed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
