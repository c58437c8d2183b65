package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/types"
)

// vectorIndexFile is the on-disk name of the serialized HNSW graph
// under <data_root>/store/vectors/.
const vectorIndexFile = "hnsw.idx"

// VectorMatch is one ANN search hit.
type VectorMatch struct {
	ChunkID    int64
	Similarity float64
}

// VectorIndex is an HNSW graph over unit-normalized chunk embeddings,
// keyed by chunk id. Cosine distance; all parameters come from
// configuration. Safe for concurrent use.
type VectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	dims  int
	path  string
}

// NewVectorIndex creates an empty vector index persisting under dir.
// The construction fanout is derived from M by the graph library.
func NewVectorIndex(dir string, cfg config.IndexingConfig) *VectorIndex {
	graph := hnsw.NewGraph[int64]()
	graph.M = cfg.HNSWM
	graph.EfSearch = cfg.HNSWEfSearch
	graph.Distance = hnsw.CosineDistance

	return &VectorIndex{
		graph: graph,
		dims:  cfg.VectorDim,
		path:  filepath.Join(dir, vectorIndexFile),
	}
}

// Insert adds or replaces the vector for a chunk.
func (v *VectorIndex) Insert(chunkID int64, vector []float32) error {
	if len(vector) != v.dims {
		return types.NewError(types.VECTOR_INDEX_FAILED,
			fmt.Sprintf("vector dimension mismatch: got %d, want %d", len(vector), v.dims))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.graph.Add(hnsw.MakeNode(chunkID, vector))
	return nil
}

// InsertBatch adds vectors for multiple chunks. Inputs must align.
func (v *VectorIndex) InsertBatch(chunkIDs []int64, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return types.NewError(types.VECTOR_INDEX_FAILED,
			fmt.Sprintf("id/vector count mismatch: %d vs %d", len(chunkIDs), len(vectors)))
	}

	nodes := make([]hnsw.Node[int64], 0, len(chunkIDs))
	for i, vector := range vectors {
		if len(vector) != v.dims {
			return types.NewError(types.VECTOR_INDEX_FAILED,
				fmt.Sprintf("vector %d dimension mismatch: got %d, want %d", i, len(vector), v.dims))
		}
		nodes = append(nodes, hnsw.MakeNode(chunkIDs[i], vector))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.graph.Add(nodes...)
	return nil
}

// Delete removes a chunk's vector. Returns false if absent.
func (v *VectorIndex) Delete(chunkID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graph.Delete(chunkID)
}

// Search returns up to k chunks nearest to the query vector, best
// first. Similarity is cosine, in [-1, 1].
func (v *VectorIndex) Search(query []float32, k int) ([]VectorMatch, error) {
	if len(query) != v.dims {
		return nil, types.NewError(types.VECTOR_INDEX_FAILED,
			fmt.Sprintf("query dimension mismatch: got %d, want %d", len(query), v.dims))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return nil, nil
	}

	nodes := v.graph.Search(query, k)
	out := make([]VectorMatch, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, VectorMatch{
			ChunkID:    node.Key,
			Similarity: 1 - float64(hnsw.CosineDistance(query, node.Value)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// Len returns the number of indexed vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.graph.Len()
}

// Save serializes the graph to disk with write-then-rename.
func (v *VectorIndex) Save() error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(v.path), 0o755); err != nil {
		return types.WrapError(types.VECTOR_INDEX_FAILED, "failed to create index directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(v.path), ".hnsw-*")
	if err != nil {
		return types.WrapError(types.VECTOR_INDEX_FAILED, "failed to create temp index file", err)
	}
	tmpPath := tmp.Name()

	if err := v.graph.Export(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return types.WrapError(types.VECTOR_INDEX_FAILED, "failed to export index", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return types.WrapError(types.VECTOR_INDEX_FAILED, "failed to close temp index file", err)
	}

	if err := os.Rename(tmpPath, v.path); err != nil {
		os.Remove(tmpPath)
		return types.WrapError(types.VECTOR_INDEX_FAILED, "failed to rename index file", err)
	}
	return nil
}

// Load restores the graph from disk. A missing file leaves the index
// empty; an unreadable file is quarantined aside and reported so the
// caller can rebuild from stored embeddings.
func (v *VectorIndex) Load() error {
	file, err := os.Open(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.WrapError(types.VECTOR_INDEX_FAILED, "failed to open index file", err)
	}
	defer file.Close()

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.graph.Import(file); err != nil {
		quarantine := v.path + ".corrupt"
		os.Rename(v.path, quarantine)
		return types.WrapError(types.VECTOR_INDEX_FAILED,
			fmt.Sprintf("vector index unreadable, moved to %s", quarantine), err)
	}
	return nil
}
