package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"chunkvault/pkg/catalog"
	"chunkvault/pkg/config"
	"chunkvault/pkg/core"
	"chunkvault/pkg/storage/disk"
	"chunkvault/pkg/storage/memory"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitStore_Disk(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	viper.Set(config.KeyStorageType, "disk")
	viper.Set(config.KeyStoragePath, filepath.Join(dir, "objects"))

	store, err := initStore(context.Background(), dir)
	require.NoError(t, err)
	adapter, ok := store.(*disk.Adapter)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "objects"), adapter.Root())
}

func TestInitStore_DiskDefaultsToRepo(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()

	store, err := initStore(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.(*disk.Adapter).Root())
}

func TestInitStore_S3_MissingBucket(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.KeyStorageType, "s3")
	// 故意不设置 bucket

	store, err := initStore(context.Background(), ".")
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestInitStore_UnknownType(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.KeyStorageType, "ftp")

	store, err := initStore(context.Background(), ".")
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestInitStore_BadRedisURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.KeyStorageType, "memory")
	viper.Set(config.KeyCacheRedisURL, "not-a-url")

	_, err := initStore(context.Background(), ".")
	assert.Error(t, err)
}

func TestInitCatalog(t *testing.T) {
	for _, typ := range []string{"sqlite", "bolt"} {
		t.Run(typ, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			viper.Set(config.KeyCatalogType, typ)

			c, err := initCatalog(context.Background(), filepath.Join(t.TempDir(), "repo"))
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.NoError(t, c.Close())
		})
	}

	viper.Reset()
	c, err := initCatalog(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, c)

	viper.Set(config.KeyCatalogType, "postgres")
	_, err = initCatalog(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "requires")

	viper.Set(config.KeyCatalogType, "mongo")
	_, err = initCatalog(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "unsupported catalog type")
	viper.Reset()
}

func TestWriterConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.KeyWriterThreads, 3)
	viper.Set(config.KeyWriterRetryTime, "10ms")
	viper.Set(config.KeyWriterFeatureLevel, "VariableSizeChunks")
	viper.Set(config.KeyWriterChunkDir, "out")

	cfg, err := writerConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NumberOfThreads)
	assert.Equal(t, 10*time.Millisecond, cfg.SaveRetryTime)
	assert.Equal(t, core.FeatureVariableSizeChunks, cfg.FeatureLevel)
	assert.Equal(t, "out", cfg.ChunkDirectory)
	assert.Equal(t, 5, cfg.SaveRetryCount)

	viper.Set(config.KeyWriterFeatureLevel, "future")
	_, err = writerConfig()
	assert.Error(t, err)
}

func TestNewApp_PutRestore(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.KeyRepoPath, t.TempDir())
	viper.Set(config.KeyStorageType, "memory")
	viper.Set(config.KeyCatalogType, "bolt")
	viper.Set(config.KeyCompressionMethod, "snappy")

	ctx := context.Background()
	a, err := NewApp(ctx)
	require.NoError(t, err)
	defer a.Close()
	_, ok := a.FS.(*memory.FileSystem)
	require.True(t, ok)

	w := a.NewWriter()
	ing, err := a.NewIngester(w)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	recipe, err := ing.IngestFile(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	summary := w.OnProcessComplete()

	session, err := a.Catalog.RecordSummary(ctx, summary, a.ChunkRoot)
	require.NoError(t, err)
	assert.Equal(t, len(summary.UniqueRecords()), session.Stats.Unique)
	require.NoError(t, a.Catalog.RecordFile(ctx, catalog.FileEntry{Path: "x", RecipeID: recipe.ID()}))

	var out bytes.Buffer
	require.NoError(t, a.NewExporter().RestoreFile(ctx, recipe, &out))
	assert.Equal(t, data, out.Bytes())
}

func TestNewApp_BadCompression(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.KeyRepoPath, t.TempDir())
	viper.Set(config.KeyCompressionMethod, "lzma")

	_, err := NewApp(context.Background())
	assert.Error(t, err)
}
