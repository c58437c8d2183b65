package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, NewValidator().Validate(cfg))
	assert.InDelta(t, 1.0, cfg.Filtering.Tier2.WeightsSum(), weightSumTolerance)
	assert.Equal(t, cfg.Embedding.Dimension, cfg.Indexing.VectorDim)
}

func TestValidate_RejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name: "tier2 weights must sum to 1.0",
			mutate: func(c *Config) {
				c.Filtering.Tier2.EntropyWeight = 0.5
				c.Filtering.Tier2.UniquenessWeight = 0.5
				c.Filtering.Tier2.TechnicalWeight = 0.5
				c.Filtering.Tier2.ChangeWeight = 0.5
			},
			wantMsg: "weights must sum to 1.0",
		},
		{
			name: "cluster min size above max",
			mutate: func(c *Config) {
				c.Filtering.Tier3.ClusterMinSize = 200
				c.Filtering.Tier3.MaxClusterSize = 100
			},
			wantMsg: "cluster_min_size",
		},
		{
			name: "vector dim must match embedding dimension",
			mutate: func(c *Config) {
				c.Indexing.VectorDim = 768
			},
			wantMsg: "vector_dim",
		},
		{
			name: "unknown log level",
			mutate: func(c *Config) {
				c.Daemon.LogLevel = "verbose"
			},
			wantMsg: "log_level",
		},
		{
			name: "unknown embedding provider",
			mutate: func(c *Config) {
				c.Embedding.Provider = "openai"
			},
			wantMsg: "provider",
		},
		{
			name: "zero buffer size",
			mutate: func(c *Config) {
				c.Capture.BufferSize = 0
			},
			wantMsg: "buffer_size",
		},
		{
			name: "entity pattern does not compile",
			mutate: func(c *Config) {
				c.Entities[0].Pattern = `[unclosed`
			},
			wantMsg: "does not compile",
		},
		{
			name: "tool with no command patterns",
			mutate: func(c *Config) {
				c.Tools[0].CommandPatterns = nil
			},
			wantMsg: "command_patterns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
storage:
  data_root: ` + dir + `
  max_blob_size: 1048576
  compression_threshold: 1024
capture:
  buffer_size: 500
daemon:
  socket_path: ` + filepath.Join(dir, "yinx.sock") + `
  log_level: debug
filtering:
  tier1:
    max_occurrences: 5
  tier2:
    entropy_weight: 0.25
    uniqueness_weight: 0.25
    technical_weight: 0.25
    change_weight: 0.25
    score_threshold_percentile: 0.9
    max_technical_score: 10.0
  tier3:
    cluster_min_size: 2
    max_cluster_size: 50
    representative_strategy: longest
embedding:
  provider: mock
  model: test-model
  dimension: 8
  batch_size: 4
  batch_timeout_seconds: 5
indexing:
  vector_dim: 8
  hnsw_m: 16
  hnsw_ef_search: 100
retrieval:
  rrf_k: 60
  semantic_weight: 1.0
  keyword_weight: 1.0
  rerank_top_k: 20
  final_limit: 10
  enable_reranking: false
  min_similarity: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	loader := NewConfigLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Storage.DataRoot)
	assert.Equal(t, 500, cfg.Capture.BufferSize)
	assert.Equal(t, "debug", cfg.Daemon.LogLevel)
	assert.Equal(t, 5, cfg.Filtering.Tier1.MaxOccurrences)
	assert.Equal(t, "longest", cfg.Filtering.Tier3.RepresentativeStrategy)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 8, cfg.Indexing.VectorDim)
	assert.False(t, cfg.Retrieval.EnableReranking)
}

func TestLoad_EnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("YINX_TEST_ROOT", dir)

	path := filepath.Join(dir, "config.yaml")
	yaml := `
storage:
  data_root: ${YINX_TEST_ROOT}/data
  max_blob_size: 1048576
  compression_threshold: 1024
capture:
  buffer_size: 100
daemon:
  socket_path: ${YINX_TEST_ROOT}/yinx.sock
  log_level: info
filtering:
  tier1:
    max_occurrences: 3
  tier2:
    entropy_weight: 0.3
    uniqueness_weight: 0.3
    technical_weight: 0.3
    change_weight: 0.1
    score_threshold_percentile: 0.8
    max_technical_score: 10.0
  tier3:
    cluster_min_size: 3
    max_cluster_size: 100
    representative_strategy: highest_entropy
embedding:
  provider: mock
  model: test-model
  dimension: 8
  batch_size: 4
  batch_timeout_seconds: 5
indexing:
  vector_dim: 8
  hnsw_m: 16
  hnsw_ef_search: 100
retrieval:
  rrf_k: 60
  semantic_weight: 1.0
  keyword_weight: 1.0
  rerank_top_k: 20
  final_limit: 10
  min_similarity: 0.0
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	loader := NewConfigLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataRoot)
	assert.Equal(t, filepath.Join(dir, "yinx.sock"), cfg.Daemon.SocketPath)
}

func TestLoad_MissingFile(t *testing.T) {
	loader := NewConfigLoader(NewValidator())

	_, err := loader.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWithDefaults_MissingFileReturnsDefaults(t *testing.T) {
	loader := NewConfigLoader(NewValidator())

	cfg, err := loader.LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Capture.BufferSize, cfg.Capture.BufferSize)
}

func TestLoad_PatternsFile(t *testing.T) {
	dir := t.TempDir()

	patternsPath := filepath.Join(dir, "patterns.yaml")
	patternsYAML := `
entities:
  - type: jwt_token
    pattern: 'eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+'
    confidence: 0.9
    redact: true
tools:
  - name: masscan
    command_patterns:
      - '^masscan\b'
tier1_normalization:
  - name: strip_counters
    pattern: '\d+/\d+'
    replacement: 'N/N'
    priority: 50
`
	require.NoError(t, os.WriteFile(patternsPath, []byte(patternsYAML), 0o644))

	path := filepath.Join(dir, "config.yaml")
	yaml := `
storage:
  data_root: ` + dir + `
  max_blob_size: 1048576
  compression_threshold: 1024
capture:
  buffer_size: 100
daemon:
  socket_path: ` + filepath.Join(dir, "yinx.sock") + `
  log_level: info
patterns_file: ` + patternsPath + `
filtering:
  tier1:
    max_occurrences: 3
  tier2:
    entropy_weight: 0.3
    uniqueness_weight: 0.3
    technical_weight: 0.3
    change_weight: 0.1
    score_threshold_percentile: 0.8
    max_technical_score: 10.0
  tier3:
    cluster_min_size: 3
    max_cluster_size: 100
    representative_strategy: first
embedding:
  provider: mock
  model: test-model
  dimension: 8
  batch_size: 4
  batch_timeout_seconds: 5
indexing:
  vector_dim: 8
  hnsw_m: 16
  hnsw_ef_search: 100
retrieval:
  rrf_k: 60
  semantic_weight: 1.0
  keyword_weight: 1.0
  rerank_top_k: 20
  final_limit: 10
  min_similarity: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	loader := NewConfigLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	entityTypes := make([]string, 0, len(cfg.Entities))
	for _, e := range cfg.Entities {
		entityTypes = append(entityTypes, e.TypeName)
	}
	assert.Contains(t, entityTypes, "jwt_token")

	toolNames := make([]string, 0, len(cfg.Tools))
	for _, tl := range cfg.Tools {
		toolNames = append(toolNames, tl.Name)
	}
	assert.Contains(t, toolNames, "masscan")

	last := cfg.Filtering.Tier1.NormalizationPatterns[len(cfg.Filtering.Tier1.NormalizationPatterns)-1]
	assert.Equal(t, "strip_counters", last.Name)
}

func TestLoad_PatternsFileMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
storage:
  data_root: ` + dir + `
  max_blob_size: 1048576
  compression_threshold: 1024
capture:
  buffer_size: 100
daemon:
  socket_path: ` + filepath.Join(dir, "yinx.sock") + `
  log_level: info
patterns_file: ` + filepath.Join(dir, "nope.yaml") + `
filtering:
  tier1:
    max_occurrences: 3
  tier2:
    entropy_weight: 0.3
    uniqueness_weight: 0.3
    technical_weight: 0.3
    change_weight: 0.1
    score_threshold_percentile: 0.8
    max_technical_score: 10.0
  tier3:
    cluster_min_size: 3
    max_cluster_size: 100
    representative_strategy: first
embedding:
  provider: mock
  model: test-model
  dimension: 8
  batch_size: 4
  batch_timeout_seconds: 5
indexing:
  vector_dim: 8
  hnsw_m: 16
  hnsw_ef_search: 100
retrieval:
  rrf_k: 60
  semantic_weight: 1.0
  keyword_weight: 1.0
  rerank_top_k: 20
  final_limit: 10
  min_similarity: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	loader := NewConfigLoader(NewValidator())
	_, err := loader.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patterns file")
}

func TestInterpolateString(t *testing.T) {
	t.Setenv("YINX_VAR", "value")

	assert.Equal(t, "pre-value-post", interpolateString("pre-${YINX_VAR}-post"))
	assert.Equal(t, "${UNSET_VAR_XYZ}", interpolateString("${UNSET_VAR_XYZ}"))
	assert.Equal(t, "plain", interpolateString("plain"))
}
