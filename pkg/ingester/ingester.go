package ingester

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"chunkvault/pkg/chunker"
	"chunkvault/pkg/core"
	"chunkvault/pkg/ignore"
	"chunkvault/pkg/logger"
	"chunkvault/pkg/storage"
	"chunkvault/pkg/types"
)

var log = logger.GetLogger("cv_ingester")

// ChunkSink 是 chunk 的消费者，ParallelChunkWriter 满足这个接口
type ChunkSink interface {
	AddChunkData(data []byte, id types.ChunkID, rollingHash uint64, sha types.SHAHash) error
}

// Ingester 是 writer 唯一的生产者：切块、算哈希、入队
// 同一个 Ingester 不能被多个 goroutine 同时使用
type Ingester struct {
	sink    ChunkSink
	chunker *chunker.Chunker
	level   core.FeatureLevel
}

func NewIngester(sink ChunkSink, c *chunker.Chunker, level core.FeatureLevel) *Ingester {
	if c == nil {
		c = chunker.NewChunker()
	}
	return &Ingester{
		sink:    sink,
		chunker: c,
		level:   level,
	}
}

// IngestFile 流式切分 reader，把每块交给 sink，返回描述整个文件的 recipe
// 调用方负责在所有文件都 ingest 完后调用 writer 的 OnProcessComplete。
func (ing *Ingester) IngestFile(ctx context.Context, reader io.Reader) (*core.FileRecipe, error) {
	var refs []core.ChunkRef

	shaHasher := sha1.New()
	rollingHasher := core.NewRollingPoly64()
	hashers := io.MultiWriter(shaHasher, rollingHasher)

	err := ing.chunker.Split(reader, func(chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		// 1. Split 会复用缓冲区，交给 writer 的数据必须是自己的
		data := make([]byte, len(chunk))
		copy(data, chunk)

		// 2. 一次遍历同时算两个哈希
		shaHasher.Reset()
		rollingHasher.Reset()
		_, _ = hashers.Write(data)
		var sha types.SHAHash
		shaHasher.Sum(sha[:0])
		rolling := rollingHasher.Sum64()

		// 3. 内容相同 => ID 相同 => 文件名相同，writer 自然去重
		id := types.ChunkIDFromContent(sha)
		if err := ing.sink.AddChunkData(data, id, rolling, sha); err != nil {
			return fmt.Errorf("enqueue chunk %d: %w", len(refs), err)
		}

		refs = append(refs, core.ChunkRef{
			ID:          id,
			RollingHash: rolling,
			SHA:         sha,
			Size:        uint32(len(data)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest stream: %w", err)
	}

	recipe, err := core.NewFileRecipe(ing.level, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to build recipe: %w", err)
	}
	return recipe, nil
}

// FileEntry 是目录 ingest 的一条结果
type FileEntry struct {
	Path   string // 相对根目录，斜杠分隔
	Recipe *core.FileRecipe
}

// IngestPaths 递归 ingest root 下所有普通文件，按 matcher 跳过被忽略的路径
// root 本身是文件时只 ingest 这一个文件，Path 为文件名。
func (ing *Ingester) IngestPaths(ctx context.Context, root string, matcher *ignore.Matcher) ([]FileEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		recipe, err := ing.ingestOne(ctx, root)
		if err != nil {
			return nil, err
		}
		return []FileEntry{{Path: filepath.Base(root), Recipe: recipe}}, nil
	}

	var entries []FileEntry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if matcher.Matches(rel) {
			log.Debugf("skip ignored path %s", rel)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// 只处理普通文件，符号链接之类直接跳过
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		recipe, err := ing.ingestOne(ctx, p)
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{Path: rel, Recipe: recipe})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (ing *Ingester) ingestOne(ctx context.Context, p string) (*core.FileRecipe, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recipe, err := ing.IngestFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	log.Debugf("ingested %s: %d bytes in %d chunks", p, recipe.TotalSize, len(recipe.Chunks))
	return recipe, nil
}

// SaveRecipe 把 recipe 写到 root/Recipes 下，返回写入的路径
// 已存在的 recipe 内容一定相同，直接跳过。
func SaveRecipe(ctx context.Context, fsys storage.FileSystem, root string, recipe *core.FileRecipe) (string, error) {
	name := core.RecipeFilename(root, recipe.ID())
	exists, err := fsys.FileExists(ctx, name)
	if err != nil {
		return "", err
	}
	if exists {
		return name, nil
	}
	if err := fsys.MakeDirectory(ctx, filepath.ToSlash(filepath.Dir(name))); err != nil {
		return "", fmt.Errorf("failed to create recipe dir: %w", err)
	}
	if err := storage.WriteFile(ctx, fsys, name, recipe.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write recipe: %w", err)
	}
	return name, nil
}
