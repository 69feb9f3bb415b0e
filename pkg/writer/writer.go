// Package writer 把 chunk 并发、去重地持久化到 FileSystem。
//
// 一个生产者调用 AddChunkData 往有界队列里放数据，NumberOfThreads 个 worker
// 从队列里取出 chunk，按 (id, rolling hash) 推出文件名：文件已存在就直接跳过，
// 否则带重试地保存。OnProcessComplete 会等队列排空后返回所有结果；
// Close 则立即停止，队列里剩下的 chunk 会被丢弃。
package writer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"chunkvault/pkg/core"
	"chunkvault/pkg/logger"
	"chunkvault/pkg/serialization"
	"chunkvault/pkg/stats"
	"chunkvault/pkg/storage"
	"chunkvault/pkg/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrWriterClosed = errors.New("chunk writer is closed")

// StatsSink 只需要能按名字创建计数器
type StatsSink interface {
	CreateStat(name string, format stats.Format) *stats.Stat
}

// 统计项名称
const (
	StatSerializeTime    = "Chunk serialize time"
	StatChunksSaved      = "Chunks saved"
	StatChunksSkipped    = "Chunks skipped (already exist)"
	StatDataWritten      = "Chunk data written"
	StatDataUncompressed = "Chunk data uncompressed"
	StatCompressionRatio = "Chunk compression ratio"
	StatWriteSpeed       = "Chunk write speed"
	StatQueueDepth       = "Chunk queue depth"
)

type chunkJob struct {
	data        []byte
	id          types.ChunkID
	rollingHash uint64
	sha         types.SHAHash
}

type Option func(*ParallelChunkWriter)

// WithFatalHandler 替换重试耗尽时的处理，默认 logrus Fatalf 直接退出进程
func WithFatalHandler(fn func(error)) Option {
	return func(w *ParallelChunkWriter) { w.fatal = fn }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(w *ParallelChunkWriter) { w.log = l }
}

type ParallelChunkWriter struct {
	cfg        Config
	fs         storage.FileSystem
	serializer *serialization.Serializer
	log        logrus.FieldLogger
	fatal      func(error)

	// ctx 只用于 FileSystem 调用；Close 不会取消它，正在进行的保存会自然结束
	ctx   context.Context
	queue chan chunkJob
	// done 在 OnProcessComplete 时关闭；queue 从不关闭
	done  chan struct{}
	abort chan struct{}
	group errgroup.Group

	queueDepth atomic.Int64
	producing  atomic.Bool
	completed  atomic.Bool
	abortOnce  sync.Once
	finishOnce sync.Once

	mu      sync.Mutex
	records []ChunkRecord

	start            time.Time
	serializeTime    *stats.Stat
	chunksSaved      *stats.Stat
	chunksSkipped    *stats.Stat
	dataWritten      *stats.Stat
	dataUncompressed *stats.Stat
	compressionRatio *stats.Stat
	writeSpeed       *stats.Stat
	queueDepthStat   *stats.Stat
}

// New 创建 writer 并立即启动 NumberOfThreads 个 worker
func New(cfg Config, serializer *serialization.Serializer, sink StatsSink, opts ...Option) *ParallelChunkWriter {
	cfg = cfg.normalize()
	if sink == nil {
		sink = stats.NewCollector()
	}

	w := &ParallelChunkWriter{
		cfg:        cfg,
		fs:         serializer.FileSystem(),
		serializer: serializer,
		log:        logger.GetLogger("cv_writer"),
		ctx:        context.Background(),
		queue:      make(chan chunkJob, cfg.MaxQueueSize),
		done:       make(chan struct{}),
		abort:      make(chan struct{}),
		start:      time.Now(),

		serializeTime:    sink.CreateStat(StatSerializeTime, stats.FormatDuration),
		chunksSaved:      sink.CreateStat(StatChunksSaved, stats.FormatValue),
		chunksSkipped:    sink.CreateStat(StatChunksSkipped, stats.FormatValue),
		dataWritten:      sink.CreateStat(StatDataWritten, stats.FormatBytes),
		dataUncompressed: sink.CreateStat(StatDataUncompressed, stats.FormatBytes),
		compressionRatio: sink.CreateStat(StatCompressionRatio, stats.FormatPercentage),
		writeSpeed:       sink.CreateStat(StatWriteSpeed, stats.FormatBytesPerSecond),
		queueDepthStat:   sink.CreateStat(StatQueueDepth, stats.FormatValue),
	}
	w.fatal = func(err error) { w.log.Fatalf("%v", err) }
	for _, opt := range opts {
		opt(w)
	}

	for i := 0; i < cfg.NumberOfThreads; i++ {
		w.group.Go(w.worker)
	}
	return w
}

func (w *ParallelChunkWriter) Config() Config { return w.cfg }

// ChunkFilename 返回该 chunk 在 FileSystem 中的路径
func (w *ParallelChunkWriter) ChunkFilename(id types.ChunkID, rollingHash uint64) string {
	return core.ChunkFilename(w.cfg.FeatureLevel, w.cfg.ChunkDirectory, id, rollingHash)
}

// AddChunkData 把一个 chunk 放进队列，之后 data 归 writer 所有，调用方不能再修改。
// 只允许一个生产者：并发调用会直接 panic。队列满时阻塞，writer 关闭后返回 ErrWriterClosed。
func (w *ParallelChunkWriter) AddChunkData(data []byte, id types.ChunkID, rollingHash uint64, sha types.SHAHash) error {
	if !w.producing.CompareAndSwap(false, true) {
		panic("writer: concurrent AddChunkData, only one producer is allowed")
	}
	defer w.producing.Store(false)

	if w.completed.Load() {
		return ErrWriterClosed
	}
	select {
	case <-w.abort:
		return ErrWriterClosed
	case <-w.done:
		return ErrWriterClosed
	default:
	}

	job := chunkJob{data: data, id: id, rollingHash: rollingHash, sha: sha}
	w.queueDepthStat.Set(w.queueDepth.Add(1))
	select {
	case w.queue <- job:
		return nil
	case <-w.abort:
	case <-w.done:
		// 生产者还没送进队列就收到了结束信号，这个 chunk 被丢弃
	}
	w.queueDepthStat.Set(w.queueDepth.Add(-1))
	return ErrWriterClosed
}

// QueueDepth 是已入队但还没被 worker 取走的 chunk 数
func (w *ParallelChunkWriter) QueueDepth() int64 { return w.queueDepth.Load() }

// OnProcessComplete 声明不会再有新数据，等待所有 worker 处理完队列后返回结果。
// 可以从别的 goroutine 调用：此时仍阻塞在 AddChunkData 里的 chunk 会被丢弃，
// 那次调用返回 ErrWriterClosed。
func (w *ParallelChunkWriter) OnProcessComplete() Summary {
	w.finishOnce.Do(func() {
		w.completed.Store(true)
		close(w.done)
	})
	_ = w.group.Wait()
	return w.summary()
}

// Close 设置中止标志并等待 worker 退出，不会排空队列
// 正在重试等待中的 worker 会先睡完这一轮
func (w *ParallelChunkWriter) Close() error {
	w.abortOnce.Do(func() { close(w.abort) })
	return w.group.Wait()
}

func (w *ParallelChunkWriter) aborted() bool {
	select {
	case <-w.abort:
		return true
	default:
		return false
	}
}

func (w *ParallelChunkWriter) summary() Summary {
	w.mu.Lock()
	records := append([]ChunkRecord(nil), w.records...)
	w.mu.Unlock()
	return newSummary(w.cfg.FeatureLevel, records)
}

func (w *ParallelChunkWriter) worker() error {
	for {
		// 每轮先检查中止标志
		if w.aborted() {
			return nil
		}
		select {
		case <-w.abort:
			return nil
		case job := <-w.queue:
			w.take(job)
		case <-w.done:
			// 不再有新数据：排空队列后退出
			for {
				if w.aborted() {
					return nil
				}
				select {
				case job := <-w.queue:
					w.take(job)
				default:
					return nil
				}
			}
		}
	}
}

func (w *ParallelChunkWriter) take(job chunkJob) {
	w.queueDepthStat.Set(w.queueDepth.Add(-1))
	w.process(job)
}

func (w *ParallelChunkWriter) process(job chunkJob) {
	filename := w.ChunkFilename(job.id, job.rollingHash)
	record := ChunkRecord{
		ID:          job.id,
		Filename:    filename,
		RollingHash: job.rollingHash,
		SHA:         job.sha,
	}

	// 1. 去重：文件已存在就不再写
	// 这只是优化，两个 worker 同时写同一个文件名最多是重复劳动，FileSystem 保证原子提交
	size, err := w.fs.GetFileSize(w.ctx, filename)
	if err == nil {
		w.chunksSkipped.Add(1)
		record.Size = size
		record.Deduped = true
		w.publish(record)
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		w.log.Warnf("check %s: %v, saving anyway", filename, err)
	}

	// 2. 带重试地保存
	size, err = w.save(job, filename)
	if err != nil {
		if w.aborted() {
			w.log.Warnf("writer closed, dropping chunk %s: %v", job.id, err)
			return
		}
		w.fatal(err)
		return
	}

	// 3. 发布结果并累计统计
	w.chunksSaved.Add(1)
	written := w.dataWritten.Add(size)
	uncompressed := w.dataUncompressed.Add(int64(len(job.data)))
	if uncompressed > 0 {
		w.compressionRatio.Set(written * 10000 / uncompressed)
	}
	if elapsed := time.Since(w.start); elapsed > 0 {
		w.writeSpeed.Set(int64(float64(written) / elapsed.Seconds()))
	}
	record.Size = size
	w.publish(record)
}

func (w *ParallelChunkWriter) save(job chunkJob, filename string) (int64, error) {
	header := *core.NewChunkHeader()
	header.ID = job.id
	header.RollingHash = job.rollingHash
	header.HashFlags = core.HashRollingPoly64
	if !job.sha.IsZero() {
		header.SHAHash = job.sha
		header.HashFlags |= core.HashSha1
	}
	access := core.NewChunkDataAccessFrom(header, job.data)

	dir := path.Dir(filename)
	var lastErr error
	for attempt := 1; attempt <= w.cfg.SaveRetryCount; attempt++ {
		if attempt > 1 {
			time.Sleep(w.cfg.SaveRetryTime)
			if w.aborted() {
				return 0, fmt.Errorf("save %s: aborted after %d attempts: %w", filename, attempt-1, lastErr)
			}
		}

		if err := w.fs.MakeDirectory(w.ctx, dir); err != nil {
			lastErr = fmt.Errorf("make directory %s: %w", dir, err)
			w.log.Warnf("attempt %d/%d: %v", attempt, w.cfg.SaveRetryCount, lastErr)
			continue
		}

		start := time.Now()
		result := w.serializer.SaveToFile(w.ctx, filename, access)
		w.serializeTime.Since(start)
		if result != serialization.SaveSuccess {
			lastErr = fmt.Errorf("save chunk %s: %s", job.id, result)
			w.log.Warnf("attempt %d/%d: %v", attempt, w.cfg.SaveRetryCount, lastErr)
			continue
		}

		size, err := w.fs.GetFileSize(w.ctx, filename)
		if err != nil {
			lastErr = fmt.Errorf("stat saved chunk %s: %w", filename, err)
			w.log.Warnf("attempt %d/%d: %v", attempt, w.cfg.SaveRetryCount, lastErr)
			continue
		}
		return size, nil
	}
	return 0, fmt.Errorf("failed to save chunk %s to %s after %d attempts: %w",
		job.id, filename, w.cfg.SaveRetryCount, lastErr)
}

func (w *ParallelChunkWriter) publish(r ChunkRecord) {
	w.mu.Lock()
	w.records = append(w.records, r)
	w.mu.Unlock()
}
