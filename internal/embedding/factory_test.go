package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/config"
	"github.com/neur0map/yinx/internal/types"
)

func TestNewMockProvider(t *testing.T) {
	embedder, err := New(config.EmbeddingConfig{
		Provider:  "mock",
		Model:     "mock-embedder",
		Dimension: 384,
	})
	require.NoError(t, err)
	assert.Equal(t, 384, embedder.Dimensions())
	assert.Equal(t, "mock-embedder", embedder.Model())
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "openai", Dimension: 1536})
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))
}
