package persistence

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/EndpointKit/pkg/config"
)

// exerciseAdapter runs the behaviour every backend must share
func exerciseAdapter(t *testing.T, a Adapter) {
	t.Helper()
	ctx := context.Background()

	blob, ok, err := a.Read(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, blob)

	require.NoError(t, a.Write(ctx, "cache/snapshot.json", []byte(`{"v":1}`)))
	blob, ok, err = a.Read(ctx, "cache/snapshot.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":1}`, string(blob))

	// Overwrite replaces the blob
	require.NoError(t, a.Write(ctx, "cache/snapshot.json", []byte(`{"v":2}`)))
	blob, ok, err = a.Read(ctx, "cache/snapshot.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":2}`, string(blob))

	assert.ErrorIs(t, a.Write(ctx, "", []byte("x")), ErrInvalidKey)
}

func TestMemoryAdapter(t *testing.T) {
	a := NewMemoryAdapter()
	exerciseAdapter(t, a)

	// Callers cannot mutate stored blobs through the returned slice
	ctx := context.Background()
	require.NoError(t, a.Write(ctx, "k", []byte("abc")))
	blob, _, _ := a.Read(ctx, "k")
	blob[0] = 'z'
	again, _, _ := a.Read(ctx, "k")
	assert.Equal(t, "abc", string(again))
	assert.ElementsMatch(t, []string{"k", "cache/snapshot.json"}, a.Keys())

	require.NoError(t, a.Close())
	_, _, err := a.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileAdapter(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := NewFileAdapterFs(fs, "/var/endpointkit")
	require.NoError(t, err)
	exerciseAdapter(t, a)

	exists, err := afero.Exists(fs, "/var/endpointkit/cache/snapshot.json")
	require.NoError(t, err)
	assert.True(t, exists)

	// No temporary files are left behind
	entries, err := afero.ReadDir(fs, "/var/endpointkit/cache")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasSuffix(entries[0].Name(), ".tmp"))
}

func TestFileAdapterRejectsEscapingKeys(t *testing.T) {
	a, err := NewFileAdapterFs(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	ctx := context.Background()
	for _, key := range []string{"../etc/passwd", "a/../../b", ".."} {
		err := a.Write(ctx, key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestRedisAdapter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), DisableIdentity: true})
	defer client.Close()

	a := NewRedisAdapterFromClient(client, "ek:")
	exerciseAdapter(t, a)

	raw, err := mr.Get("ek:cache/snapshot.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, raw)

	// Closing a borrowed client is left to the caller
	require.NoError(t, a.Close())
	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestSQLiteAdapter(t *testing.T) {
	ctx := context.Background()
	a, err := NewSQLiteAdapter(ctx, &SQLiteConfig{DSN: ":memory:", TableName: "test_snapshots"})
	require.NoError(t, err)
	defer a.Close()

	exerciseAdapter(t, a)

	var count int64
	require.NoError(t, a.db.Table("test_snapshots").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMemcacheAdapter(t *testing.T) {
	addr := os.Getenv("MEMCACHE_ADDR")
	if addr == "" {
		t.Skip("MEMCACHE_ADDR not set")
	}

	a, err := NewMemcacheAdapter(&MemcacheConfig{
		Servers:   []string{addr},
		Timeout:   time.Second,
		KeyPrefix: "ek-test-" + time.Now().Format("150405.000000") + ":",
	})
	require.NoError(t, err)
	defer a.Close()

	exerciseAdapter(t, a)
}

func TestMemcacheKeyValidation(t *testing.T) {
	a := &MemcacheAdapter{}
	_, err := a.key("has space")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = a.key(strings.Repeat("k", 251))
	assert.ErrorIs(t, err, ErrInvalidKey)
	k, err := a.key("reports/abc")
	require.NoError(t, err)
	assert.Equal(t, "reports/abc", k)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	a, err := NewFromConfig(ctx, config.PersistenceConfig{Provider: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryAdapter{}, a)

	a, err = NewFromConfig(ctx, config.PersistenceConfig{
		Provider: "file",
		File:     config.FilePersistenceConfig{Dir: t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &FileAdapter{}, a)

	a, err = NewFromConfig(ctx, config.PersistenceConfig{
		Provider: "sqlite",
		SQLite:   config.SQLitePersistenceConfig{DSN: ":memory:"},
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLAdapter{}, a)
	require.NoError(t, a.Close())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	host, port := splitAddr(t, mr.Addr())
	a, err = NewFromConfig(ctx, config.PersistenceConfig{
		Provider: "redis",
		Redis:    config.RedisConfig{Host: host, Port: port},
	})
	require.NoError(t, err)
	assert.IsType(t, &RedisAdapter{}, a)
	require.NoError(t, a.Close())

	_, err = NewFromConfig(ctx, config.PersistenceConfig{Provider: "s3"})
	assert.Error(t, err)
}
