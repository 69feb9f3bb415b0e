package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"chunkvault/pkg/storage"
)

// Adapter 实现了 storage.FileSystem，所有路径都落在 rootPath 之下
type Adapter struct {
	rootPath string // 比如: /home/user/.cv/data
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

func (s *Adapter) Root() string { return s.rootPath }

// resolve 把 "/" 分隔的相对路径映射到 root 下的物理路径
// 拒绝 ".." 之类逃出 root 的路径
func (s *Adapter) resolve(name string) (string, error) {
	local := filepath.FromSlash(name)
	if name != "" && !filepath.IsLocal(local) {
		return "", fmt.Errorf("path %q escapes storage root", name)
	}
	return filepath.Join(s.rootPath, local), nil
}

func (s *Adapter) CreateReader(ctx context.Context, name string) (io.ReadCloser, error) {
	target, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreateWriter 原子写入 (Atomic Write)
// 先写到同目录的临时文件，Close 时再 Rename 到目标位置。
// 这样保证要么文件不存在，要么文件是完整的。
func (s *Adapter) CreateWriter(ctx context.Context, name string) (io.WriteCloser, error) {
	target, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	tempFile, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: tempFile, target: target}, nil
}

func (s *Adapter) FileExists(ctx context.Context, name string) (bool, error) {
	_, err := s.GetFileSize(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Adapter) GetFileSize(ctx context.Context, name string) (int64, error) {
	target, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", name)
	}
	return info.Size(), nil
}

func (s *Adapter) MakeDirectory(ctx context.Context, name string) error {
	target, err := s.resolve(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(target, 0755)
}

// atomicFile 记录写入过程中的第一个错误，出错时 Close 只清理临时文件
type atomicFile struct {
	*os.File
	target string
	err    error
}

func (f *atomicFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	if err != nil && f.err == nil {
		f.err = err
	}
	return n, err
}

func (f *atomicFile) Close() error {
	tempName := f.File.Name()
	// 确保临时文件会被清理（如果成功 Rename 了，这个删除会失效，或者无害）
	defer os.Remove(tempName)

	if err := f.File.Close(); err != nil && f.err == nil {
		f.err = err
	}
	if f.err != nil {
		return f.err
	}
	return os.Rename(tempName, f.target)
}
