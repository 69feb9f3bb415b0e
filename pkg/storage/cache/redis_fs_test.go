package cache

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"chunkvault/pkg/storage"
	"chunkvault/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SpyFileSystem 统计底层 GetFileSize 被调用的次数，验证请求是否穿透了缓存
type SpyFileSystem struct {
	*memory.FileSystem
	sizeCount int32
}

func (s *SpyFileSystem) GetFileSize(ctx context.Context, path string) (int64, error) {
	atomic.AddInt32(&s.sizeCount, 1)
	return s.FileSystem.GetFileSize(ctx, path)
}

var _ storage.FileSystem = (*SpyFileSystem)(nil)

func TestNewCachedFileSystem_BadURL(t *testing.T) {
	_, err := NewCachedFileSystem(memory.New(), Config{RedisURL: "not-a-url"})
	assert.Error(t, err)
}

func TestCachedFileSystem_Integration(t *testing.T) {
	// A. 环境检查: 确保 Redis 在运行
	redisAddr := "localhost:6379"
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()

	ctx := context.Background()
	spy := &SpyFileSystem{FileSystem: memory.New()}
	cached, err := NewCachedFileSystem(spy, Config{
		RedisURL: fmt.Sprintf("redis://%s/0", redisAddr),
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	defer cached.Close()

	path := fmt.Sprintf("ChunksV4/00/%d.chunk", time.Now().UnixNano())
	defer cached.client.Del(ctx, cached.cacheKey(path))

	// --- Step 1: Cache Miss, 不存在的结果不缓存 ---
	exists, err := cached.FileExists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.sizeCount))

	// --- Step 2: 写入后缓存里就有大小 ---
	w, err := cached.CreateWriter(ctx, path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "twelve bytes")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	v, err := cached.client.Get(ctx, cached.cacheKey(path)).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	// --- Step 3: Cache Hit, 底层不会再被调用 ---
	size, err := cached.GetFileSize(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), size)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.sizeCount), "Backend GetFileSize() should NOT be called on hit")
}
