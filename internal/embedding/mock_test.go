package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/types"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	mock := NewMockEmbedder(384)
	ctx := context.Background()

	first, err := mock.Embed(ctx, "nmap scan results")
	require.NoError(t, err)
	second, err := mock.Embed(ctx, "nmap scan results")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 384)
}

func TestMockEmbedderDistinctTexts(t *testing.T) {
	mock := NewMockEmbedder(64)
	ctx := context.Background()

	a, err := mock.Embed(ctx, "text a")
	require.NoError(t, err)
	b, err := mock.Embed(ctx, "text b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestMockEmbedderUnitLength(t *testing.T) {
	mock := NewMockEmbedder(128)

	vector, err := mock.Embed(context.Background(), "some text")
	require.NoError(t, err)

	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestMockEmbedderBatch(t *testing.T) {
	mock := NewMockEmbedder(32)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	batch, err := mock.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	// Batch results match single embeds, in input order.
	for i, text := range texts {
		single, err := mock.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestMockEmbedderErrors(t *testing.T) {
	mock := NewMockEmbedder(32)
	ctx := context.Background()

	embedErr := errors.New("embed down")
	mock.SetEmbedError(embedErr)
	_, err := mock.Embed(ctx, "text")
	assert.ErrorIs(t, err, embedErr)

	batchErr := errors.New("batch down")
	mock.SetBatchError(batchErr)
	_, err = mock.EmbedBatch(ctx, []string{"text"})
	assert.ErrorIs(t, err, batchErr)

	mock.Reset()
	_, err = mock.Embed(ctx, "text")
	assert.NoError(t, err)
}

func TestMockEmbedderCallRecording(t *testing.T) {
	mock := NewMockEmbedder(32)
	ctx := context.Background()

	_, _ = mock.Embed(ctx, "a")
	_, _ = mock.EmbedBatch(ctx, []string{"b", "c"})
	mock.Health(ctx)

	assert.Len(t, mock.Calls(), 3)
	assert.Len(t, mock.CallsByMethod("Embed"), 1)
	assert.Len(t, mock.CallsByMethod("EmbedBatch"), 1)
	assert.Len(t, mock.CallsByMethod("Health"), 1)
}

func TestMockEmbedderHealth(t *testing.T) {
	mock := NewMockEmbedder(32)

	assert.True(t, mock.Health(context.Background()).IsHealthy())

	mock.SetHealthStatus(types.NewHealthStatus(types.HealthStateUnhealthy, "model gone"))
	status := mock.Health(context.Background())
	assert.Equal(t, types.HealthStateUnhealthy, status.State)
}

func TestMockEmbedderCancelledContext(t *testing.T) {
	mock := NewMockEmbedder(32)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Embed(ctx, "text")
	require.Error(t, err)
	assert.Equal(t, types.OP_CANCELLED, types.CodeOf(err))
}

func TestNormalize(t *testing.T) {
	vector := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, vector[0], 1e-6)
	assert.InDelta(t, 0.8, vector[1], 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}
