package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/neur0map/yinx/internal/types"
)

// MockCall records one method call on the mock embedder.
type MockCall struct {
	Method    string
	Args      []interface{}
	Timestamp time.Time
}

// MockEmbedder generates deterministic embeddings derived from a text
// hash, so the same text always produces the same vector. It records
// every call and lets tests inject errors and health states.
type MockEmbedder struct {
	mu           sync.RWMutex
	dimensions   int
	model        string
	calls        []MockCall
	embedError   error
	batchError   error
	healthStatus types.HealthStatus
}

// NewMockEmbedder creates a mock embedder producing vectors of the
// given dimensionality.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{
		dimensions:   dimensions,
		model:        "mock-embedder",
		healthStatus: types.NewHealthStatus(types.HealthStateHealthy, "mock embedder"),
	}
}

// Embed generates a deterministic embedding for a single text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{
		Method:    "Embed",
		Args:      []interface{}{text},
		Timestamp: time.Now(),
	})

	if m.embedError != nil {
		return nil, m.embedError
	}
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.OP_CANCELLED, "embed cancelled", err)
	}

	return m.generate(text), nil
}

// EmbedBatch generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{
		Method:    "EmbedBatch",
		Args:      []interface{}{texts},
		Timestamp: time.Now(),
	})

	if m.batchError != nil {
		return nil, m.batchError
	}
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.OP_CANCELLED, "embed batch cancelled", err)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.generate(text)
	}
	return out, nil
}

// generate derives a unit-length vector from a SHA256 hash of the text.
// The hash seeds a PRNG so the output is stable across calls.
func (m *MockEmbedder) generate(text string) []float32 {
	hash := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(hash[:8]))
	rng := rand.New(rand.NewSource(seed))

	vector := make([]float32, m.dimensions)
	for i := range vector {
		vector[i] = float32(rng.Float64()*2 - 1)
	}
	return Normalize(vector)
}

// Dimensions returns the dimensionality of the embedding vectors.
func (m *MockEmbedder) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Model returns the mock model name.
func (m *MockEmbedder) Model() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// Health returns the configured health status.
func (m *MockEmbedder) Health(ctx context.Context) types.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{
		Method:    "Health",
		Timestamp: time.Now(),
	})
	return m.healthStatus
}

// SetEmbedError configures Embed to return an error.
func (m *MockEmbedder) SetEmbedError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedError = err
}

// SetBatchError configures EmbedBatch to return an error.
func (m *MockEmbedder) SetBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchError = err
}

// SetHealthStatus configures what Health returns.
func (m *MockEmbedder) SetHealthStatus(status types.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// Calls returns a copy of all recorded method calls.
func (m *MockEmbedder) Calls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallsByMethod returns recorded calls to one method.
func (m *MockEmbedder) CallsByMethod(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var calls []MockCall
	for _, call := range m.calls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Reset clears recorded calls and injected errors.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
	m.embedError = nil
	m.batchError = nil
	m.healthStatus = types.NewHealthStatus(types.HealthStateHealthy, "mock embedder")
}
