package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"chunkvault/pkg/logger"
	"chunkvault/pkg/storage"

	"github.com/redis/go-redis/v9"
)

var log = logger.GetLogger("cv_cache")

// CachedFileSystem 是一个装饰器，为底层 storage.FileSystem 的存在性/大小查询加一层 Redis 缓存
// writer 的去重检查每个 chunk 都要调用一次 GetFileSize，后端是 S3 时这一层收益最大。
type CachedFileSystem struct {
	backend storage.FileSystem // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedFileSystem(backend storage.FileSystem, cfg Config) (*CachedFileSystem, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedFileSystem{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedFileSystem) cacheKey(path string) string {
	return "cv:size:" + path
}

func (s *CachedFileSystem) Close() error {
	return s.client.Close()
}

// GetFileSize 优先查 Redis
// 只缓存"存在"的结果，不存在的文件随时可能被别的进程写出来
func (s *CachedFileSystem) GetFileSize(ctx context.Context, path string) (int64, error) {
	key := s.cacheKey(path)

	size, err := s.client.Get(ctx, key).Int64()
	switch {
	case err == nil:
		return size, nil
	case errors.Is(err, redis.Nil):
	default:
		// 缓存故障降级：Redis 挂了就退化为无缓存模式
		log.Warnf("redis get %s: %v", key, err)
	}

	size, err = s.backend.GetFileSize(ctx, path)
	if err != nil {
		return 0, err
	}

	// 回填不阻塞主流程，也不受上层 ctx 取消影响
	go s.fill(key, size)
	return size, nil
}

func (s *CachedFileSystem) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := s.GetFileSize(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// CreateWriter 透传，写成功后把大小写进缓存
func (s *CachedFileSystem) CreateWriter(ctx context.Context, path string) (io.WriteCloser, error) {
	w, err := s.backend.CreateWriter(ctx, path)
	if err != nil {
		return nil, err
	}
	return &countingWriter{WriteCloser: w, fs: s, key: s.cacheKey(path)}, nil
}

// CreateReader 透传，chunk 数据本身不进 Redis
func (s *CachedFileSystem) CreateReader(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.backend.CreateReader(ctx, path)
}

func (s *CachedFileSystem) MakeDirectory(ctx context.Context, path string) error {
	return s.backend.MakeDirectory(ctx, path)
}

func (s *CachedFileSystem) fill(key string, size int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, key, size, s.ttl).Err(); err != nil {
		log.Debugf("redis set %s: %v", key, err)
	}
}

type countingWriter struct {
	io.WriteCloser
	fs  *CachedFileSystem
	key string
	n   int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.WriteCloser.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *countingWriter) Close() error {
	if err := w.WriteCloser.Close(); err != nil {
		return err
	}
	// 只有底层提交成功了才写缓存
	w.fs.fill(w.key, w.n)
	return nil
}
