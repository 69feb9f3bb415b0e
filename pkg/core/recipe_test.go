package core

import (
	"testing"

	"chunkvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecipe_Canonical(t *testing.T) {
	chunks := []ChunkRef{
		{ID: types.ChunkIDFromContent(Sha1([]byte("a"))), RollingHash: 1, SHA: Sha1([]byte("a")), Size: 10},
		{ID: types.ChunkIDFromContent(Sha1([]byte("b"))), RollingHash: 2, SHA: Sha1([]byte("b")), Size: 20},
	}
	r1, err := NewFileRecipe(FeatureLatest, chunks)
	require.NoError(t, err)
	assert.Equal(t, int64(30), r1.TotalSize)
	assert.Len(t, r1.ID(), 64)

	r2, err := DecodeFileRecipe(r1.Bytes())
	require.NoError(t, err)
	assert.Equal(t, r1.ID(), r2.ID(), "同一个 recipe 的编码必须稳定")
	assert.Equal(t, chunks, r2.Chunks)
	assert.Equal(t, FeatureLatest, r2.FeatureLevel)
}

func TestFileRecipe_SizeMismatch(t *testing.T) {
	r, err := NewFileRecipe(FeatureLatest, []ChunkRef{{Size: 5}})
	require.NoError(t, err)

	r.TotalSize = 99
	_, data, err := CalculateHash(r)
	require.NoError(t, err)

	_, err = DecodeFileRecipe(data)
	assert.Error(t, err)
}

func TestFileRecipe_Empty(t *testing.T) {
	r, err := NewFileRecipe(FeatureLatest, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.TotalSize)

	back, err := DecodeFileRecipe(r.Bytes())
	require.NoError(t, err)
	assert.Empty(t, back.Chunks)
}

func TestRecipeFilename(t *testing.T) {
	assert.Equal(t, "store/Recipes/ab/abcdef.recipe", RecipeFilename("store", "abcdef"))
	assert.Equal(t, "Recipes/a/a.recipe", RecipeFilename("", "a"))
}
