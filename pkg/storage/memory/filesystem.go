package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"chunkvault/pkg/storage"
)

// FileSystem 是纯内存的 storage.FileSystem，用于测试和 dry-run
type FileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}

	writersCreated atomic.Int64

	// FailCreate 不为 nil 时每次 CreateWriter 都会先调用它，返回错误即创建失败
	FailCreate func(path string) error
}

func New() *FileSystem {
	return &FileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
	}
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (m *FileSystem) CreateReader(ctx context.Context, name string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.files[clean(name)]
	m.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *FileSystem) CreateWriter(ctx context.Context, name string) (io.WriteCloser, error) {
	if m.FailCreate != nil {
		if err := m.FailCreate(name); err != nil {
			return nil, err
		}
	}
	m.writersCreated.Add(1)
	return &memWriter{fs: m, name: clean(name)}, nil
}

func (m *FileSystem) FileExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[clean(name)]
	return ok, nil
}

func (m *FileSystem) GetFileSize(ctx context.Context, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[clean(name)]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(data)), nil
}

func (m *FileSystem) MakeDirectory(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[clean(name)] = struct{}{}
	return nil
}

// WritersCreated 统计 CreateWriter 成功的次数，用来断言去重是否生效
func (m *FileSystem) WritersCreated() int64 { return m.writersCreated.Load() }

// Files 返回所有文件名 (排序后)
func (m *FileSystem) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Bytes 返回文件内容的副本
func (m *FileSystem) Bytes(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[clean(name)]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Put 直接覆盖文件内容，测试里用来制造损坏的 chunk
func (m *FileSystem) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(name)] = bytes.Clone(data)
}

type memWriter struct {
	fs     *FileSystem
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

// Close 时才整体提交
func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	w.fs.files[w.name] = w.buf.Bytes()
	return nil
}
