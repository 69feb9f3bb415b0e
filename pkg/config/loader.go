package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chunkvault/pkg/logger"

	"github.com/spf13/viper"
)

var log = logger.GetLogger("cv_config")

// RepoDirName 是仓库元数据目录
const RepoDirName = ".cv"

// 配置键
const (
	KeyRepoPath = "repo.path"

	KeyStorageType        = "storage.type"
	KeyStoragePath        = "storage.path"
	KeyS3Endpoint         = "storage.s3.endpoint"
	KeyS3Region           = "storage.s3.region"
	KeyS3Bucket           = "storage.s3.bucket"
	KeyS3Prefix           = "storage.s3.prefix"
	KeyS3AccessKeyID      = "storage.s3.access_key"
	KeyS3SecretAccessKey  = "storage.s3.secret_key"
	KeyCacheRedisURL      = "cache.redis_url"
	KeyCacheTTL           = "cache.ttl"
	KeyCompressionMethod  = "compression.method"
	KeyWriterChunkDir     = "writer.chunk_dir"
	KeyWriterThreads      = "writer.threads"
	KeyWriterQueueSize    = "writer.queue_size"
	KeyWriterRetryCount   = "writer.retry_count"
	KeyWriterRetryTime    = "writer.retry_time"
	KeyWriterFeatureLevel = "writer.feature_level"
	KeyChunkerMinSize     = "chunker.min_size"
	KeyChunkerAvgSize     = "chunker.avg_size"
	KeyChunkerMaxSize     = "chunker.max_size"
	KeyCatalogType        = "catalog.type"
	KeyCatalogPath        = "catalog.path"
	KeyCatalogDSN         = "catalog.dsn"
	KeyLogLevel           = "log.level"
	KeyLogFile            = "log.file"
	KeyLogNoColor         = "log.no_color"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 默认值
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：当前目录 -> ./.cv -> ~/.cv
		viper.AddConfigPath(".")
		viper.AddConfigPath(RepoDirName)
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, RepoDirName))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 环境变量：CV_STORAGE_S3_BUCKET -> storage.s3.bucket
	viper.SetEnvPrefix("CV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件；找不到文件不算错，仍然可以只靠默认值和环境变量
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		log.Debugf("no config file found, using defaults/env vars")
	} else {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	}

	return applyLogging()
}

func setDefaults() {
	wd, _ := os.Getwd()
	repoPath := filepath.Join(wd, RepoDirName)
	viper.SetDefault(KeyRepoPath, repoPath)

	// storage.path 留空表示直接用仓库目录
	viper.SetDefault(KeyStorageType, "disk")
	viper.SetDefault(KeyS3Region, "us-east-1")

	viper.SetDefault(KeyCacheTTL, 24*time.Hour)
	viper.SetDefault(KeyCompressionMethod, "zlib")

	// 0 表示 NumCPU
	viper.SetDefault(KeyWriterThreads, 0)
	viper.SetDefault(KeyWriterQueueSize, 64)
	viper.SetDefault(KeyWriterRetryCount, 5)
	viper.SetDefault(KeyWriterRetryTime, 500*time.Millisecond)
	viper.SetDefault(KeyWriterFeatureLevel, "latest")

	viper.SetDefault(KeyChunkerMinSize, 4*1024)
	viper.SetDefault(KeyChunkerAvgSize, 8*1024)
	viper.SetDefault(KeyChunkerMaxSize, 64*1024)

	viper.SetDefault(KeyCatalogType, "sqlite")
	viper.SetDefault(KeyLogLevel, "info")
}

// applyLogging 让 log.* 配置立即生效
func applyLogging() error {
	if err := logger.ParseAndSetLevel(viper.GetString(KeyLogLevel)); err != nil {
		return err
	}
	if viper.GetBool(KeyLogNoColor) {
		logger.SetColor(false)
	}
	if file := viper.GetString(KeyLogFile); file != "" {
		if err := logger.SetOutFile(file); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}
	return nil
}

// DefaultFileContent 是 init 写出的配置模板
func DefaultFileContent() string {
	return `# chunkvault configuration
storage:
  type: disk          # disk | s3 | memory
  # path: /data/chunkvault
  # s3:
  #   endpoint: http://localhost:9000
  #   bucket: chunkvault
  #   access_key: minioadmin
  #   secret_key: minioadmin
# cache:
#   redis_url: redis://localhost:6379/0
#   ttl: 24h
compression:
  method: zlib        # zlib | snappy | zstd | none
writer:
  queue_size: 64
  retry_count: 5
  retry_time: 500ms
  feature_level: latest
catalog:
  type: sqlite        # sqlite | postgres | bolt | none
log:
  level: info
  # no_color: true
`
}
