package embedding

import (
	"fmt"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/types"
)

// New creates the embedder selected by cfg.Provider and checks that
// its output dimensionality matches the configured dimension. The
// daemon fails fast if the embedder cannot be created; vector search
// is a core feature.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch cfg.Provider {
	case "native":
		embedder, err = NewNativeEmbedder()
	case "mock":
		embedder = NewMockEmbedder(cfg.Dimension)
	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown embedding provider %q, must be 'native' or 'mock'", cfg.Provider))
	}
	if err != nil {
		return nil, err
	}

	if embedder.Dimensions() != cfg.Dimension {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("embedder %s produces %d-dimensional vectors but embedding.dimension is %d",
				embedder.Model(), embedder.Dimensions(), cfg.Dimension))
	}

	return embedder, nil
}
