package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/config"
)

func testIndexConfig(dim int) config.IndexingConfig {
	return config.IndexingConfig{
		VectorDim:    dim,
		HNSWM:        16,
		HNSWEfSearch: 50,
	}
}

func TestVectorIndexInsertAndSearch(t *testing.T) {
	idx := NewVectorIndex(t.TempDir(), testIndexConfig(3))

	require.NoError(t, idx.Insert(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Insert(2, []float32{0, 1, 0}))
	require.NoError(t, idx.Insert(3, []float32{0, 0, 1}))

	matches, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, int64(1), matches[0].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
}

func TestVectorIndexDimensionMismatch(t *testing.T) {
	idx := NewVectorIndex(t.TempDir(), testIndexConfig(3))

	assert.Error(t, idx.Insert(1, []float32{1, 0}))
	_, err := idx.Search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestVectorIndexEmptySearch(t *testing.T) {
	idx := NewVectorIndex(t.TempDir(), testIndexConfig(3))

	matches, err := idx.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorIndexInsertBatch(t *testing.T) {
	idx := NewVectorIndex(t.TempDir(), testIndexConfig(2))

	err := idx.InsertBatch(
		[]int64{1, 2, 3},
		[][]float32{{1, 0}, {0, 1}, {0.7, 0.7}},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	err = idx.InsertBatch([]int64{4}, [][]float32{{1, 0}, {0, 1}})
	assert.Error(t, err)
}

func TestVectorIndexDelete(t *testing.T) {
	idx := NewVectorIndex(t.TempDir(), testIndexConfig(2))

	require.NoError(t, idx.Insert(1, []float32{1, 0}))
	assert.True(t, idx.Delete(1))
	assert.False(t, idx.Delete(1))
	assert.Equal(t, 0, idx.Len())
}

func TestVectorIndexSaveLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := testIndexConfig(3)

	idx := NewVectorIndex(dir, cfg)
	require.NoError(t, idx.Insert(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Insert(2, []float32{0, 1, 0}))
	require.NoError(t, idx.Save())

	reopened := NewVectorIndex(dir, cfg)
	require.NoError(t, reopened.Load())
	assert.Equal(t, 2, reopened.Len())

	matches, err := reopened.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(2), matches[0].ChunkID)
}

func TestVectorIndexLoadMissingFile(t *testing.T) {
	idx := NewVectorIndex(t.TempDir(), testIndexConfig(3))
	require.NoError(t, idx.Load())
	assert.Equal(t, 0, idx.Len())
}
