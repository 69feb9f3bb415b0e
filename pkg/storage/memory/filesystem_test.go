package memory

import (
	"context"
	"errors"
	"testing"

	"chunkvault/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem(t *testing.T) {
	ctx := context.Background()
	fs := New()

	_, err := fs.GetFileSize(ctx, "a/b.chunk")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	w, err := fs.CreateWriter(ctx, "a/b.chunk")
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)

	// 提交之前不可见
	exists, _ := fs.FileExists(ctx, "a/b.chunk")
	assert.False(t, exists)

	require.NoError(t, w.Close())

	size, err := fs.GetFileSize(ctx, "/a/./b.chunk")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	data, err := storage.ReadFile(ctx, fs, "a/b.chunk")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	assert.Equal(t, int64(1), fs.WritersCreated())
	assert.Equal(t, []string{"a/b.chunk"}, fs.Files())
}

func TestMemoryFileSystem_FailCreate(t *testing.T) {
	fs := New()
	boom := errors.New("disk full")
	fs.FailCreate = func(string) error { return boom }

	_, err := fs.CreateWriter(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), fs.WritersCreated())
}
