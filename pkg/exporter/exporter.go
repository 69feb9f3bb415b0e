package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chunkvault/pkg/core"
	"chunkvault/pkg/serialization"
	"chunkvault/pkg/storage"
)

var ErrChunkMismatch = errors.New("chunk does not match recipe")

// LoadError 描述某个 chunk 加载失败的原因
type LoadError struct {
	Index    int
	Filename string
	Result   serialization.LoadResult
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("chunk %d (%s): load failed: %s", e.Index, e.Filename, e.Result)
}

type Exporter struct {
	serializer *serialization.Serializer
	root       string
}

// NewExporter root 是 writer 的 ChunkDirectory
func NewExporter(serializer *serialization.Serializer, root string) *Exporter {
	return &Exporter{serializer: serializer, root: root}
}

// ChunkFilename 按 recipe 记录的 feature level 推出 chunk 路径
func (e *Exporter) ChunkFilename(recipe *core.FileRecipe, ref core.ChunkRef) string {
	return core.ChunkFilename(recipe.FeatureLevel, e.root, ref.ID, ref.RollingHash)
}

// LoadRecipe 按 ID 读取之前保存的 recipe
func (e *Exporter) LoadRecipe(ctx context.Context, id string) (*core.FileRecipe, error) {
	data, err := storage.ReadFile(ctx, e.serializer.FileSystem(), core.RecipeFilename(e.root, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe %s: %w", id, err)
	}
	return core.DecodeFileRecipe(data)
}

// loadChunk 加载并对照 recipe 检查一个 chunk
// serializer 已经校验了 payload 自身的哈希，这里确认它就是 recipe 要的那一块
func (e *Exporter) loadChunk(ctx context.Context, recipe *core.FileRecipe, i int) ([]byte, error) {
	ref := recipe.Chunks[i]
	filename := e.ChunkFilename(recipe, ref)

	access, result := e.serializer.LoadFromFile(ctx, filename)
	if result != serialization.LoadSuccess {
		return nil, &LoadError{Index: i, Filename: filename, Result: result}
	}

	header, payload := access.AcquireData()
	defer access.ReleaseData()

	switch {
	case header.ID != ref.ID:
		return nil, fmt.Errorf("%w: chunk %d id %s, want %s", ErrChunkMismatch, i, header.ID, ref.ID)
	case uint32(len(payload)) != ref.Size:
		return nil, fmt.Errorf("%w: chunk %d size %d, want %d", ErrChunkMismatch, i, len(payload), ref.Size)
	case header.HashFlags.Has(core.HashSha1) && header.SHAHash != ref.SHA:
		return nil, fmt.Errorf("%w: chunk %d sha %s, want %s", ErrChunkMismatch, i, header.SHAHash, ref.SHA)
	}
	return payload, nil
}

// RestoreFile 按顺序把 recipe 的每个 chunk 写入 writer
func (e *Exporter) RestoreFile(ctx context.Context, recipe *core.FileRecipe, writer io.Writer) error {
	var written int64
	for i := range recipe.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := e.loadChunk(ctx, recipe, i)
		if err != nil {
			return err
		}
		n, err := writer.Write(payload)
		if err != nil {
			return fmt.Errorf("failed to write chunk %d data: %w", i, err)
		}
		written += int64(n)
	}
	if written != recipe.TotalSize {
		return fmt.Errorf("%w: restored %d bytes, recipe says %d", ErrChunkMismatch, written, recipe.TotalSize)
	}
	return nil
}

// RestoreToPath 还原到本地文件，失败时删除写了一半的文件
func (e *Exporter) RestoreToPath(ctx context.Context, recipe *core.FileRecipe, target string) error {
	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	if err := e.RestoreFile(ctx, recipe, file); err != nil {
		file.Close()
		os.Remove(target)
		return err
	}
	return file.Close()
}

// ChunkStatus 是 verify 的单条结果
type ChunkStatus struct {
	Index    int
	Filename string
	Err      error
}

// VerifyRecipe 加载 recipe 引用的每个 chunk，返回所有失败项
// 返回的 error 只代表 ctx 被取消，单个 chunk 的问题放在结果里
func (e *Exporter) VerifyRecipe(ctx context.Context, recipe *core.FileRecipe) ([]ChunkStatus, error) {
	var failed []ChunkStatus
	for i, ref := range recipe.Chunks {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if _, err := e.loadChunk(ctx, recipe, i); err != nil {
			failed = append(failed, ChunkStatus{Index: i, Filename: e.ChunkFilename(recipe, ref), Err: err})
		}
	}
	return failed, nil
}
