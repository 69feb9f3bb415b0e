package writer

import (
	"runtime"
	"time"

	"chunkvault/pkg/core"
)

// Config 是 writer 的全部可调参数
type Config struct {
	// ChunkDirectory 是 FileSystem 内的根目录，chunk 文件放在它的子目录下
	ChunkDirectory  string
	NumberOfThreads int
	// MaxQueueSize 队列满时 AddChunkData 会阻塞
	MaxQueueSize   int
	SaveRetryCount int
	SaveRetryTime  time.Duration
	FeatureLevel   core.FeatureLevel
}

func DefaultConfig() Config {
	return Config{
		ChunkDirectory:  "",
		NumberOfThreads: runtime.NumCPU(),
		MaxQueueSize:    64,
		SaveRetryCount:  5,
		SaveRetryTime:   500 * time.Millisecond,
		FeatureLevel:    core.FeatureLatest,
	}
}

// normalize 把非法值修正为最小可用值
func (c Config) normalize() Config {
	if c.NumberOfThreads < 1 {
		c.NumberOfThreads = 1
	}
	if c.MaxQueueSize < 1 {
		c.MaxQueueSize = 1
	}
	if c.SaveRetryCount < 1 {
		c.SaveRetryCount = 1
	}
	if c.SaveRetryTime < 0 {
		c.SaveRetryTime = 0
	}
	if !c.FeatureLevel.IsValid() {
		c.FeatureLevel = core.FeatureLatest
	}
	return c
}
