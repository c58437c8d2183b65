package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/buckhx/gobert/tokenize"
	"github.com/buckhx/gobert/tokenize/vocab"
	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx"

	"github.com/neur0map/yinx/internal/types"
)

const (
	nativeModelRepo = "sentence-transformers/all-MiniLM-L6-v2"
	nativeModelName = "all-MiniLM-L6-v2"
	nativeDims      = 384
	nativeSeqLen    = 256
)

// The GoMLX backend is initialized once per process; every caller
// shares the same instance.
var (
	nativeInstance *NativeEmbedder
	nativeOnce     sync.Once
	nativeErr      error
)

// NativeEmbedder generates embeddings locally with all-MiniLM-L6-v2
// running on the GoMLX XLA backend. After the initial model download
// from HuggingFace it works fully offline. Vectors are 384-dimensional
// and unit-normalized. Safe for concurrent use.
type NativeEmbedder struct {
	model     *onnx.Model
	ctx       *mlcontext.Context
	backend   backends.Backend
	tokenizer tokenize.FeatureFactory
	mu        sync.Mutex
}

// NewNativeEmbedder creates or returns the process-wide native
// embedder. Model and vocabulary files are downloaded on first use and
// cached under ~/.cache/huggingface/.
func NewNativeEmbedder() (*NativeEmbedder, error) {
	nativeOnce.Do(func() {
		backend, err := backends.New()
		if err != nil {
			nativeErr = types.WrapError(types.EMBEDDER_UNAVAILABLE,
				"failed to initialize GoMLX backend", err)
			return
		}

		repo := hub.New(nativeModelRepo)

		modelPath, err := repo.DownloadFile("onnx/model.onnx")
		if err != nil {
			nativeErr = types.WrapError(types.EMBEDDER_UNAVAILABLE,
				"failed to download all-MiniLM-L6-v2 model", err)
			return
		}

		model, err := onnx.ReadFile(modelPath)
		if err != nil {
			nativeErr = types.WrapError(types.EMBEDDER_UNAVAILABLE,
				fmt.Sprintf("failed to load ONNX model from %s", modelPath), err)
			return
		}

		mlCtx := mlcontext.New()
		if err := model.VariablesToContext(mlCtx); err != nil {
			nativeErr = types.WrapError(types.EMBEDDER_UNAVAILABLE,
				"failed to extract model variables", err)
			return
		}

		vocabPath, err := repo.DownloadFile("vocab.txt")
		if err != nil {
			nativeErr = types.WrapError(types.EMBEDDER_UNAVAILABLE,
				"failed to download vocabulary", err)
			return
		}

		vocabDict, err := vocab.FromFile(vocabPath)
		if err != nil {
			nativeErr = types.WrapError(types.EMBEDDER_UNAVAILABLE,
				fmt.Sprintf("failed to load vocabulary from %s", vocabPath), err)
			return
		}

		tokenizer := tokenize.NewTokenizer(vocabDict,
			tokenize.WithLower(true),
			tokenize.WithUnknownToken("[UNK]"))

		nativeInstance = &NativeEmbedder{
			model:   model,
			ctx:     mlCtx,
			backend: backend,
			tokenizer: tokenize.FeatureFactory{
				Tokenizer: tokenizer,
				SeqLen:    nativeSeqLen,
			},
		}
	})

	if nativeErr != nil {
		return nil, nativeErr
	}
	return nativeInstance, nil
}

// Embed tokenizes the text, runs it through the transformer and
// mean-pools the last hidden state into a unit-normalized vector.
func (e *NativeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED, "context canceled", err)
	}

	feature := e.tokenizer.Feature(text)
	if len(feature.TokenIDs) == 0 {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			"tokenization produced no tokens")
	}

	// The tokenizer produces int32 but the ONNX model expects int64.
	inputIDs := make([]int64, len(feature.TokenIDs))
	attentionMask := make([]int64, len(feature.Mask))
	tokenTypeIDs := make([]int64, len(feature.TypeIDs))
	for i := range feature.TokenIDs {
		inputIDs[i] = int64(feature.TokenIDs[i])
		attentionMask[i] = int64(feature.Mask[i])
		tokenTypeIDs[i] = int64(feature.TypeIDs[i])
	}

	batchInputIDs := [][]int64{inputIDs}
	batchAttentionMask := [][]int64{attentionMask}
	batchTokenTypeIDs := [][]int64{tokenTypeIDs}

	// Graph execution is serialized; the XLA backend is not safe for
	// concurrent ExecOnce calls on one context.
	e.mu.Lock()
	result, err := mlcontext.ExecOnce(e.backend, e.ctx, func(ctx *mlcontext.Context, inputs []*Node) *Node {
		g := inputs[0].Graph()

		outputs := e.model.CallGraph(ctx, g, map[string]*Node{
			"input_ids":      inputs[0],
			"attention_mask": inputs[1],
			"token_type_ids": inputs[2],
		}, "last_hidden_state")
		lastHiddenState := outputs[0]

		// Mean pooling over non-padding tokens:
		// [batch, seq, hidden] -> [batch, hidden].
		maskExpanded := ExpandDims(inputs[1], -1)
		maskExpanded = ConvertType(maskExpanded, lastHiddenState.DType())

		masked := Mul(lastHiddenState, maskExpanded)
		sumHidden := ReduceSum(masked, 1)

		sumMask := ReduceSum(maskExpanded, 1)
		sumMask = Add(sumMask, Const(g, float32(1e-9)))

		return Div(sumHidden, sumMask)
	}, batchInputIDs, batchAttentionMask, batchTokenTypeIDs)
	e.mu.Unlock()

	if err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED,
			"GoMLX graph execution failed", err)
	}

	vector, err := tensorRow(result)
	if err != nil {
		return nil, err
	}
	if len(vector) != nativeDims {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("unexpected embedding dimension: got %d, want %d", len(vector), nativeDims))
	}

	return Normalize(vector), nil
}

// EmbedBatch embeds each text in order. Partial results are not
// returned on failure.
func (e *NativeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, types.WrapError(types.EMBEDDING_BATCH_FAILED,
				fmt.Sprintf("context canceled after %d/%d embeddings", i, len(texts)), err)
		}

		vector, err := e.Embed(ctx, text)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_BATCH_FAILED,
				fmt.Sprintf("embedding %d/%d failed", i+1, len(texts)), err)
		}
		out[i] = vector
	}
	return out, nil
}

// Dimensions returns 384, the output width of all-MiniLM-L6-v2.
func (e *NativeEmbedder) Dimensions() int {
	return nativeDims
}

// Model returns the embedding model name.
func (e *NativeEmbedder) Model() string {
	return nativeModelName
}

// Health generates a probe embedding to verify the model runs.
func (e *NativeEmbedder) Health(ctx context.Context) types.HealthStatus {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := e.Embed(healthCtx, "health check"); err != nil {
		return types.NewHealthStatus(types.HealthStateDegraded,
			fmt.Sprintf("native embedder failed health check: %v", err))
	}
	return types.NewHealthStatus(types.HealthStateHealthy,
		"native embedder operational (all-MiniLM-L6-v2 via GoMLX)")
}

// tensorRow extracts the single row of a [1, N] tensor as float32.
func tensorRow(tensor *tensors.Tensor) ([]float32, error) {
	shape := tensor.Shape()
	if shape.Rank() != 2 || shape.Dimensions[0] != 1 {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("unexpected output shape %v, want [1, N]", shape))
	}

	dims := shape.Dimensions[1]
	out := make([]float32, dims)

	switch tensor.DType() {
	case dtypes.Float32:
		data, err := tensors.CopyFlatData[float32](tensor)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED, "failed to copy tensor data", err)
		}
		copy(out, data[:dims])
	case dtypes.Float64:
		data, err := tensors.CopyFlatData[float64](tensor)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED, "failed to copy tensor data", err)
		}
		for i := 0; i < dims; i++ {
			out[i] = float32(data[i])
		}
	default:
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("unsupported tensor dtype %v", tensor.DType()))
	}

	return out, nil
}
