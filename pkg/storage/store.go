package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound = errors.New("file not found")
)

// FileSystem 是 chunk 读写所依赖的最小文件系统抽象
// 路径一律使用 "/" 分隔，相对于实现自己的根 (本地目录 / bucket 前缀)。
// 实现必须保证 CreateWriter 的结果在 Close 成功之前对读者不可见，
// 这样并发写同一个文件名最多只是重复劳动，不会读到半个文件。
type FileSystem interface {
	// CreateReader 打开文件用于读取，不存在时返回 ErrNotFound
	CreateReader(ctx context.Context, path string) (io.ReadCloser, error)

	// CreateWriter 创建 (或覆盖) 文件，内容在 Close 成功后才生效
	CreateWriter(ctx context.Context, path string) (io.WriteCloser, error)

	FileExists(ctx context.Context, path string) (bool, error)

	// GetFileSize 不存在时返回 ErrNotFound
	GetFileSize(ctx context.Context, path string) (int64, error)

	// MakeDirectory 递归创建目录，已存在不算错误
	MakeDirectory(ctx context.Context, path string) error
}

// ReadFile 把整个文件读进内存
func ReadFile(ctx context.Context, fs FileSystem, path string) ([]byte, error) {
	r, err := fs.CreateReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteFile 一次性写入整个文件
func WriteFile(ctx context.Context, fs FileSystem, path string, data []byte) error {
	w, err := fs.CreateWriter(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
