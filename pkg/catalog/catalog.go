// Package catalog 记录每次写入会话产生的 chunk，支持按 ID 反查文件位置。
// chunk 文件本身才是事实来源，catalog 丢了可以重建，只是查询会变慢。
package catalog

import (
	"context"
	"errors"
	"time"

	"chunkvault/pkg/core"
	"chunkvault/pkg/types"
	"chunkvault/pkg/writer"
)

var (
	ErrChunkNotFound = errors.New("chunk not found in catalog")
	ErrFileNotFound  = errors.New("file not found in catalog")
)

// ChunkEntry 是 catalog 里一个 chunk 的最新位置
type ChunkEntry struct {
	ID           types.ChunkID     `json:"id"`
	Filename     string            `json:"filename"`
	Root         string            `json:"root"`
	Size         int64             `json:"size"`
	RollingHash  uint64            `json:"rolling_hash"`
	SHA          types.SHAHash     `json:"sha"`
	FeatureLevel core.FeatureLevel `json:"feature_level"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SessionStats 是一次 OnProcessComplete 的汇总
type SessionStats struct {
	Records     int   `json:"records"`
	Unique      int   `json:"unique"`
	Deduped     int   `json:"deduped"`
	OutputBytes int64 `json:"output_bytes"`
}

type Session struct {
	ID            uint64            `json:"id"`
	Root          string            `json:"root"`
	FeatureLevel  core.FeatureLevel `json:"feature_level"`
	HeaderVersion core.ChunkVersion `json:"header_version"`
	Stats         SessionStats      `json:"stats"`
	CreatedAt     time.Time         `json:"created_at"`
}

// FileEntry 把 put 时的相对路径映射到 recipe
type FileEntry struct {
	Path      string    `json:"path"`
	RecipeID  string    `json:"recipe_id"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Catalog interface {
	// RecordSummary 保存一次写入会话，并更新其中每个 chunk 的位置
	RecordSummary(ctx context.Context, summary writer.Summary, root string) (*Session, error)
	GetChunk(ctx context.Context, id types.ChunkID) (*ChunkEntry, error)
	// ListSessions 按时间倒序，limit <= 0 表示不限
	ListSessions(ctx context.Context, limit int) ([]Session, error)

	RecordFile(ctx context.Context, entry FileEntry) error
	LookupFile(ctx context.Context, path string) (*FileEntry, error)

	Close() error
}

// NewSession 从 writer 的结果里算出会话统计
func NewSession(summary writer.Summary, root string, now time.Time) Session {
	records := summary.Records()
	unique := summary.UniqueRecords()
	stats := SessionStats{
		Records:     len(records),
		Unique:      len(unique),
		OutputBytes: summary.TotalOutputSize(),
	}
	for _, r := range records {
		if r.Deduped {
			stats.Deduped++
		}
	}
	return Session{
		Root:          root,
		FeatureLevel:  summary.FeatureLevel,
		HeaderVersion: summary.HeaderVersion,
		Stats:         stats,
		CreatedAt:     now,
	}
}

// ChunkEntries 把 summary 里去重后的 chunk 转成 catalog 条目
func ChunkEntries(summary writer.Summary, root string, now time.Time) []ChunkEntry {
	unique := summary.UniqueRecords()
	entries := make([]ChunkEntry, 0, len(unique))
	for _, r := range unique {
		entries = append(entries, ChunkEntry{
			ID:           r.ID,
			Filename:     r.Filename,
			Root:         root,
			Size:         r.Size,
			RollingHash:  r.RollingHash,
			SHA:          r.SHA,
			FeatureLevel: summary.FeatureLevel,
			UpdatedAt:    now,
		})
	}
	return entries
}
