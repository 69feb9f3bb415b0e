package core

import (
	"fmt"
	"path"

	"chunkvault/pkg/types"
)

// ChunkRef 描述 FileRecipe 对单个 chunk 的引用
type ChunkRef struct {
	ID          types.ChunkID `cbor:"id"`
	RollingHash uint64        `cbor:"rh"`
	SHA         types.SHAHash `cbor:"sha"`
	Size        uint32        `cbor:"s"` // 未压缩大小，恢复时用来计算 offset
}

// FileRecipe 把按顺序排列的 chunk 组装成一个逻辑上的文件
type FileRecipe struct {
	hash     string `cbor:"-"`
	rawBytes []byte `cbor:"-"`

	TotalSize    int64        `cbor:"ts"`
	FeatureLevel FeatureLevel `cbor:"fl"`
	Chunks       []ChunkRef   `cbor:"cs"`
}

// NewFileRecipe 创建 recipe 并计算其规范编码
func NewFileRecipe(level FeatureLevel, chunks []ChunkRef) (*FileRecipe, error) {
	var total int64
	for _, c := range chunks {
		total += int64(c.Size)
	}
	r := &FileRecipe{
		TotalSize:    total,
		FeatureLevel: level,
		Chunks:       chunks,
	}
	h, b, err := CalculateHash(r)
	if err != nil {
		return nil, err
	}
	r.hash = h
	r.rawBytes = b
	return r, nil
}

// DecodeFileRecipe 解析 recipe 并校验 TotalSize 与 chunk 列表一致
func DecodeFileRecipe(data []byte) (*FileRecipe, error) {
	var r FileRecipe
	if err := DecodeObject(data, &r); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	var total int64
	for _, c := range r.Chunks {
		total += int64(c.Size)
	}
	if total != r.TotalSize {
		return nil, fmt.Errorf("recipe size mismatch: header says %d, chunks sum to %d", r.TotalSize, total)
	}
	h, b, err := CalculateHash(&r)
	if err != nil {
		return nil, err
	}
	r.hash = h
	r.rawBytes = b
	return &r, nil
}

// ID 是 recipe 规范编码的 sha256
func (r *FileRecipe) ID() string    { return r.hash }
func (r *FileRecipe) Bytes() []byte { return r.rawBytes }

// RecipeSubdir 是 recipe 在仓库根目录下的子目录
const RecipeSubdir = "Recipes"

// RecipeFilename 按 recipe ID 前两位分片，避免单目录文件过多
func RecipeFilename(root, id string) string {
	shard := id
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join(root, RecipeSubdir, shard, id+".recipe")
}
