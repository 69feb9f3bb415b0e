// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chunkvault/pkg/catalog"
	"chunkvault/pkg/catalog/bolt"
	"chunkvault/pkg/catalog/sqldb"
	"chunkvault/pkg/chunker"
	"chunkvault/pkg/compression"
	"chunkvault/pkg/config"
	"chunkvault/pkg/core"
	"chunkvault/pkg/exporter"
	"chunkvault/pkg/ingester"
	"chunkvault/pkg/serialization"
	"chunkvault/pkg/stats"
	"chunkvault/pkg/storage"
	"chunkvault/pkg/storage/cache"
	"chunkvault/pkg/storage/disk"
	"chunkvault/pkg/storage/memory"
	"chunkvault/pkg/storage/s3"
	"chunkvault/pkg/writer"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器
// 它持有所有“单例”服务，具体命令只从这里取
type App struct {
	RepoPath   string
	FS         storage.FileSystem
	Serializer *serialization.Serializer
	Stats      *stats.Collector
	// Catalog 在 catalog.type=none 时为 nil
	Catalog catalog.Catalog

	// ChunkRoot 是 FileSystem 内 chunk 和 recipe 的根目录
	ChunkRoot     string
	WriterConfig  writer.Config
	ChunkerConfig chunker.Config

	closers []io.Closer
}

// NewApp 按 Viper 的配置组装所有组件，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	// 1. 仓库根路径
	repoPath := viper.GetString(config.KeyRepoPath)
	if repoPath == "" {
		return nil, fmt.Errorf("repo path not set")
	}

	// 2. 纯配置部分先校验，出错时还没有打开任何资源
	writerCfg, err := writerConfig()
	if err != nil {
		return nil, err
	}
	chunkerCfg := chunkerConfig()
	if err := chunkerCfg.Validate(); err != nil {
		return nil, err
	}
	compressor, err := compression.GetCompressorViaString(viper.GetString(config.KeyCompressionMethod))
	if err != nil {
		return nil, err
	}

	a := &App{
		RepoPath:      repoPath,
		Stats:         stats.NewCollector(),
		ChunkRoot:     writerCfg.ChunkDirectory,
		WriterConfig:  writerCfg,
		ChunkerConfig: chunkerCfg,
	}

	// 3. 存储层 (可能带 Redis 缓存)
	fs, err := initStore(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	if c, ok := fs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.FS = fs
	a.Serializer = serialization.New(fs, compressor)

	// 4. catalog
	a.Catalog, err = initCatalog(ctx, repoPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Catalog != nil {
		a.closers = append(a.closers, a.Catalog)
	}
	return a, nil
}

// NewWriter 每次写入会话用一个新的 writer
func (a *App) NewWriter(opts ...writer.Option) *writer.ParallelChunkWriter {
	return writer.New(a.WriterConfig, a.Serializer, a.Stats, opts...)
}

func (a *App) NewIngester(sink ingester.ChunkSink) (*ingester.Ingester, error) {
	c, err := chunker.New(a.ChunkerConfig)
	if err != nil {
		return nil, err
	}
	return ingester.NewIngester(sink, c, a.WriterConfig.FeatureLevel), nil
}

func (a *App) NewExporter() *exporter.Exporter {
	return exporter.NewExporter(a.Serializer, a.ChunkRoot)
}

// Close 按打开的逆序关闭资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func writerConfig() (writer.Config, error) {
	cfg := writer.DefaultConfig()
	cfg.ChunkDirectory = viper.GetString(config.KeyWriterChunkDir)
	if n := viper.GetInt(config.KeyWriterThreads); n > 0 {
		cfg.NumberOfThreads = n
	}
	if n := viper.GetInt(config.KeyWriterQueueSize); n > 0 {
		cfg.MaxQueueSize = n
	}
	if n := viper.GetInt(config.KeyWriterRetryCount); n > 0 {
		cfg.SaveRetryCount = n
	}
	if viper.IsSet(config.KeyWriterRetryTime) {
		cfg.SaveRetryTime = viper.GetDuration(config.KeyWriterRetryTime)
	}

	name := viper.GetString(config.KeyWriterFeatureLevel)
	if name == "" {
		return cfg, nil
	}

	level, err := core.ParseFeatureLevel(name)
	if err != nil {
		return writer.Config{}, err
	}
	cfg.FeatureLevel = level
	return cfg, nil
}

// chunkerConfig 没有配置的字段沿用默认值
func chunkerConfig() chunker.Config {
	cfg := chunker.DefaultConfig()
	if n := viper.GetInt(config.KeyChunkerMinSize); n > 0 {
		cfg.MinSize = n
	}
	if n := viper.GetInt(config.KeyChunkerAvgSize); n > 0 {
		cfg.AvgSize = n
	}
	if n := viper.GetInt(config.KeyChunkerMaxSize); n > 0 {
		cfg.MaxSize = n
	}
	return cfg
}

// initStore 根据 storage.type 创建后端，配置了 cache.redis_url 时再包一层缓存
func initStore(ctx context.Context, repoPath string) (storage.FileSystem, error) {
	var backend storage.FileSystem

	storeType := viper.GetString(config.KeyStorageType)
	switch storeType {
	case "disk", "":
		storePath := viper.GetString(config.KeyStoragePath)
		if storePath == "" {
			storePath = repoPath
		}
		adapter, err := disk.NewAdapter(storePath)
		if err != nil {
			return nil, fmt.Errorf("failed to init storage: %w", err)
		}
		backend = adapter

	case "s3":
		bucket := viper.GetString(config.KeyS3Bucket)
		if bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required (set %s)", config.KeyS3Bucket)
		}
		adapter, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString(config.KeyS3Endpoint),
			Region:          viper.GetString(config.KeyS3Region),
			Bucket:          bucket,
			Prefix:          viper.GetString(config.KeyS3Prefix),
			AccessKeyID:     viper.GetString(config.KeyS3AccessKeyID),
			SecretAccessKey: viper.GetString(config.KeyS3SecretAccessKey),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 storage: %w", err)
		}
		backend = adapter

	case "memory":
		backend = memory.New()

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storeType)
	}

	redisURL := viper.GetString(config.KeyCacheRedisURL)
	if redisURL == "" {
		return backend, nil
	}
	cached, err := cache.NewCachedFileSystem(backend, cache.Config{
		RedisURL: redisURL,
		TTL:      viper.GetDuration(config.KeyCacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis cache: %w", err)
	}
	return cached, nil
}

func initCatalog(ctx context.Context, repoPath string) (catalog.Catalog, error) {
	catalogType := viper.GetString(config.KeyCatalogType)
	path := viper.GetString(config.KeyCatalogPath)

	switch catalogType {
	case "none", "":
		return nil, nil
	case "sqlite", "postgres":
		cfg := sqldb.Config{Driver: catalogType, DSN: viper.GetString(config.KeyCatalogDSN)}
		if catalogType == "sqlite" {
			if path == "" {
				path = filepath.Join(repoPath, "catalog.db")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, err
			}
			cfg.DSN = path
		} else if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres catalog requires %s", config.KeyCatalogDSN)
		}
		// 不能直接 return Open(...)，出错时会得到一个非 nil 的接口
		db, err := sqldb.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "bolt":
		if path == "" {
			path = filepath.Join(repoPath, "catalog.bolt")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		return bolt.New(path)
	default:
		return nil, fmt.Errorf("unsupported catalog type: %s", catalogType)
	}
}
