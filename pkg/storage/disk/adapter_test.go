package disk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"chunkvault/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	fs, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	name := "ChunksV4/07/00000000000000AB_0102.chunk"

	// 2. 父目录不存在时不能创建 writer
	_, err = fs.CreateWriter(ctx, name)
	assert.Error(t, err)

	require.NoError(t, fs.MakeDirectory(ctx, "ChunksV4/07"))
	require.NoError(t, fs.MakeDirectory(ctx, "ChunksV4/07"), "重复创建目录不算错误")

	// 3. Close 之前文件不可见
	w, err := fs.CreateWriter(ctx, name)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)

	exists, err := fs.FileExists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists, "Close 之前目标文件不应存在")

	require.NoError(t, w.Close())

	// 验证文件是否真的存在于物理磁盘
	_, err = os.Stat(filepath.Join(tmpDir, "ChunksV4", "07", "00000000000000AB_0102.chunk"))
	assert.NoError(t, err)

	// 4. 测试 Size / Exists
	size, err := fs.GetFileSize(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	exists, err = fs.FileExists(ctx, name)
	assert.NoError(t, err)
	assert.True(t, exists)

	// 5. 测试读取
	reader, err := fs.CreateReader(ctx, name)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello world"), content)

	// 6. 临时文件都被清理掉了
	entries, err := os.ReadDir(filepath.Join(tmpDir, "ChunksV4", "07"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiskAdapter_NotFound(t *testing.T) {
	fs, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.GetFileSize(ctx, "missing.chunk")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = fs.CreateReader(ctx, "missing.chunk")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	exists, err := fs.FileExists(ctx, "missing.chunk")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestDiskAdapter_RejectsEscape(t *testing.T) {
	fs, err := NewAdapter(t.TempDir())
	require.NoError(t, err)

	_, err = fs.CreateWriter(context.Background(), "../outside.chunk")
	assert.Error(t, err)
}

func TestDiskAdapter_Overwrite(t *testing.T) {
	fs, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.WriteFile(ctx, fs, "a.bin", []byte("first")))
	require.NoError(t, storage.WriteFile(ctx, fs, "a.bin", []byte("second!")))

	data, err := storage.ReadFile(ctx, fs, "a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("second!"), data)
}
