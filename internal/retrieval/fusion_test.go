package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRFBothLists(t *testing.T) {
	fused := FuseRRF([]RankedList{
		{Source: "semantic", Weight: 1.0, ChunkID: []int64{1, 2, 3}},
		{Source: "keyword", Weight: 1.0, ChunkID: []int64{2, 1, 4}},
	}, 60)

	require.Len(t, fused, 4)
	// Chunks in both lists outrank single-list chunks.
	assert.ElementsMatch(t, []int64{fused[0].ChunkID, fused[1].ChunkID}, []int64{1, 2})
	assert.Greater(t, fused[0].Score, fused[2].Score)
}

func TestFuseRRFScoreFormula(t *testing.T) {
	fused := FuseRRF([]RankedList{
		{Source: "semantic", Weight: 2.0, ChunkID: []int64{7}},
	}, 60)

	require.Len(t, fused, 1)
	assert.InDelta(t, 2.0/61.0, fused[0].Score, 1e-9)
	assert.Equal(t, []string{"semantic"}, fused[0].Sources)
}

func TestFuseRRFWeights(t *testing.T) {
	fused := FuseRRF([]RankedList{
		{Source: "semantic", Weight: 1.0, ChunkID: []int64{1}},
		{Source: "keyword", Weight: 0.5, ChunkID: []int64{2}},
	}, 60)

	require.Len(t, fused, 2)
	assert.Equal(t, int64(1), fused[0].ChunkID)
	assert.InDelta(t, fused[0].Score, 2*fused[1].Score, 1e-9)
}

func TestFuseRRFStableTies(t *testing.T) {
	// Equal-rank ties keep first-encountered order across runs.
	first := FuseRRF([]RankedList{
		{Source: "semantic", Weight: 1.0, ChunkID: []int64{1, 2}},
		{Source: "keyword", Weight: 1.0, ChunkID: []int64{1, 2}},
	}, 60)
	second := FuseRRF([]RankedList{
		{Source: "semantic", Weight: 1.0, ChunkID: []int64{1, 2}},
		{Source: "keyword", Weight: 1.0, ChunkID: []int64{1, 2}},
	}, 60)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), first[0].ChunkID)
	assert.InDelta(t, first[1].Score+2*(1.0/61-1.0/62), first[0].Score, 1e-9)
}

func TestFuseRRFEmptyLists(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, 60))
	assert.Empty(t, FuseRRF([]RankedList{{Source: "semantic", Weight: 1}}, 60))
}
