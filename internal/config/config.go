package config

import (
	"fmt"
	"math"
)

// Config is the full configuration surface consumed by the yinx core.
type Config struct {
	Storage   StorageConfig         `yaml:"storage" json:"storage" mapstructure:"storage"`
	Capture   CaptureConfig         `yaml:"capture" json:"capture" mapstructure:"capture"`
	Daemon    DaemonConfig          `yaml:"daemon" json:"daemon" mapstructure:"daemon"`
	Filtering FilteringConfig       `yaml:"filtering" json:"filtering" mapstructure:"filtering"`
	Entities  []EntityPatternConfig `yaml:"entities" json:"entities" mapstructure:"entities" validate:"dive"`
	Tools     []ToolPatternConfig   `yaml:"tools" json:"tools" mapstructure:"tools" validate:"dive"`

	// PatternsFile optionally names a YAML file whose pattern sections
	// are appended to the lists above after the main config loads.
	PatternsFile string `yaml:"patterns_file" json:"patterns_file" mapstructure:"patterns_file"`
	Embedding EmbeddingConfig       `yaml:"embedding" json:"embedding" mapstructure:"embedding"`
	Indexing  IndexingConfig        `yaml:"indexing" json:"indexing" mapstructure:"indexing"`
	Retrieval RetrievalConfig       `yaml:"retrieval" json:"retrieval" mapstructure:"retrieval"`
	Tracing   TracingConfig         `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// StorageConfig controls the persistence layout under data_root.
type StorageConfig struct {
	// DataRoot is the base directory for all persistence.
	DataRoot string `yaml:"data_root" json:"data_root" mapstructure:"data_root" validate:"required"`

	// MaxBlobSize rejects captures whose output exceeds this size in bytes.
	MaxBlobSize int64 `yaml:"max_blob_size" json:"max_blob_size" mapstructure:"max_blob_size" validate:"gt=0"`

	// CompressionThreshold compresses blobs at or above this size in bytes.
	CompressionThreshold int `yaml:"compression_threshold" json:"compression_threshold" mapstructure:"compression_threshold" validate:"gte=0"`
}

// CaptureConfig controls the intake stage.
type CaptureConfig struct {
	// BufferSize is the intake channel capacity. A full channel rejects
	// new captures with a backpressure error.
	BufferSize int `yaml:"buffer_size" json:"buffer_size" mapstructure:"buffer_size" validate:"gt=0"`
}

// DaemonConfig controls daemon plumbing consumed by the core.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path" mapstructure:"socket_path" validate:"required"`
	PIDFile    string `yaml:"pid_file" json:"pid_file" mapstructure:"pid_file"`
	LogLevel   string `yaml:"log_level" json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat  string `yaml:"log_format" json:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`
}

// FilteringConfig holds the three reducer tiers.
type FilteringConfig struct {
	Tier1 Tier1Config `yaml:"tier1" json:"tier1" mapstructure:"tier1"`
	Tier2 Tier2Config `yaml:"tier2" json:"tier2" mapstructure:"tier2"`
	Tier3 Tier3Config `yaml:"tier3" json:"tier3" mapstructure:"tier3"`
}

// NormalizationPatternConfig is one pattern/replacement pair applied by
// tier 1 or tier 3 normalization, in ascending priority order.
type NormalizationPatternConfig struct {
	Name        string `yaml:"name" json:"name" mapstructure:"name" validate:"required"`
	Pattern     string `yaml:"pattern" json:"pattern" mapstructure:"pattern" validate:"required"`
	Replacement string `yaml:"replacement" json:"replacement" mapstructure:"replacement"`
	Priority    int    `yaml:"priority" json:"priority" mapstructure:"priority"`
}

// TechnicalPatternConfig is a named weighted pattern for tier 2 scoring.
type TechnicalPatternConfig struct {
	Name    string  `yaml:"name" json:"name" mapstructure:"name" validate:"required"`
	Pattern string  `yaml:"pattern" json:"pattern" mapstructure:"pattern" validate:"required"`
	Weight  float64 `yaml:"weight" json:"weight" mapstructure:"weight" validate:"gt=0"`
}

// Tier1Config controls normalized-hash deduplication.
type Tier1Config struct {
	MaxOccurrences        int                          `yaml:"max_occurrences" json:"max_occurrences" mapstructure:"max_occurrences" validate:"gt=0"`
	NormalizationPatterns []NormalizationPatternConfig `yaml:"normalization_patterns" json:"normalization_patterns" mapstructure:"normalization_patterns"`
}

// Tier2Config controls statistical scoring. The four component weights
// must sum to 1.0.
type Tier2Config struct {
	EntropyWeight            float64                  `yaml:"entropy_weight" json:"entropy_weight" mapstructure:"entropy_weight" validate:"gte=0,lte=1"`
	UniquenessWeight         float64                  `yaml:"uniqueness_weight" json:"uniqueness_weight" mapstructure:"uniqueness_weight" validate:"gte=0,lte=1"`
	TechnicalWeight          float64                  `yaml:"technical_weight" json:"technical_weight" mapstructure:"technical_weight" validate:"gte=0,lte=1"`
	ChangeWeight             float64                  `yaml:"change_weight" json:"change_weight" mapstructure:"change_weight" validate:"gte=0,lte=1"`
	ScoreThresholdPercentile float64                  `yaml:"score_threshold_percentile" json:"score_threshold_percentile" mapstructure:"score_threshold_percentile" validate:"gte=0,lte=1"`
	MaxTechnicalScore        float64                  `yaml:"max_technical_score" json:"max_technical_score" mapstructure:"max_technical_score" validate:"gt=0"`
	TechnicalPatterns        []TechnicalPatternConfig `yaml:"technical_patterns" json:"technical_patterns" mapstructure:"technical_patterns"`
}

// WeightsSum returns the sum of the four component weights.
func (c Tier2Config) WeightsSum() float64 {
	return c.EntropyWeight + c.UniquenessWeight + c.TechnicalWeight + c.ChangeWeight
}

// Tier3Config controls pattern clustering.
type Tier3Config struct {
	ClusterMinSize         int                          `yaml:"cluster_min_size" json:"cluster_min_size" mapstructure:"cluster_min_size" validate:"gt=0"`
	MaxClusterSize         int                          `yaml:"max_cluster_size" json:"max_cluster_size" mapstructure:"max_cluster_size" validate:"gt=0"`
	RepresentativeStrategy string                       `yaml:"representative_strategy" json:"representative_strategy" mapstructure:"representative_strategy" validate:"oneof=first longest highest_entropy"`
	ClusterPatterns        []NormalizationPatternConfig `yaml:"cluster_patterns" json:"cluster_patterns" mapstructure:"cluster_patterns"`
}

// EntityPatternConfig registers one entity kind. TypeName is an open
// string; adding a new kind is a config change, not a code change.
type EntityPatternConfig struct {
	TypeName      string  `yaml:"type" json:"type" mapstructure:"type" validate:"required"`
	Pattern       string  `yaml:"pattern" json:"pattern" mapstructure:"pattern" validate:"required"`
	Confidence    float64 `yaml:"confidence" json:"confidence" mapstructure:"confidence" validate:"gte=0,lte=1"`
	ContextWindow int     `yaml:"context_window" json:"context_window" mapstructure:"context_window" validate:"gte=0"`
	Redact        bool    `yaml:"redact" json:"redact" mapstructure:"redact"`
	Description   string  `yaml:"description" json:"description" mapstructure:"description"`
}

// OutputPatternConfig names a section of a tool's output.
type OutputPatternConfig struct {
	Pattern string `yaml:"pattern" json:"pattern" mapstructure:"pattern" validate:"required"`
	Section string `yaml:"section" json:"section" mapstructure:"section" validate:"required"`
}

// ToolPatternConfig registers one tool detector.
type ToolPatternConfig struct {
	Name            string                `yaml:"name" json:"name" mapstructure:"name" validate:"required"`
	CommandPatterns []string              `yaml:"command_patterns" json:"command_patterns" mapstructure:"command_patterns" validate:"min=1"`
	EntityHints     []string              `yaml:"entity_hints" json:"entity_hints" mapstructure:"entity_hints"`
	OutputPatterns  []OutputPatternConfig `yaml:"output_patterns" json:"output_patterns" mapstructure:"output_patterns"`
}

// EmbeddingConfig selects the embedder and its batching.
type EmbeddingConfig struct {
	// Provider selects the embedder implementation: "native" or "mock".
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider" validate:"oneof=native mock"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model" mapstructure:"model" validate:"required"`

	// Dimension is the fixed vector dimensionality for this deployment.
	Dimension int `yaml:"dimension" json:"dimension" mapstructure:"dimension" validate:"gt=0"`

	// BatchSize is the number of chunk texts embedded per call.
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size" validate:"gt=0"`

	// BatchTimeoutSeconds bounds one embedding batch; a timed-out batch
	// is retried once, then its chunks are deferred.
	BatchTimeoutSeconds int `yaml:"batch_timeout_seconds" json:"batch_timeout_seconds" mapstructure:"batch_timeout_seconds" validate:"gt=0"`
}

// IndexingConfig holds ANN index parameters. The graph library derives
// its construction fanout from M, so there is no separate knob for it.
type IndexingConfig struct {
	VectorDim    int `yaml:"vector_dim" json:"vector_dim" mapstructure:"vector_dim" validate:"gt=0"`
	HNSWM        int `yaml:"hnsw_m" json:"hnsw_m" mapstructure:"hnsw_m" validate:"gt=0"`
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search" mapstructure:"hnsw_ef_search" validate:"gt=0"`
}

// RetrievalConfig holds the hybrid retrieval pipeline parameters.
type RetrievalConfig struct {
	RRFK            float64 `yaml:"rrf_k" json:"rrf_k" mapstructure:"rrf_k" validate:"gt=0"`
	SemanticWeight  float64 `yaml:"semantic_weight" json:"semantic_weight" mapstructure:"semantic_weight" validate:"gt=0"`
	KeywordWeight   float64 `yaml:"keyword_weight" json:"keyword_weight" mapstructure:"keyword_weight" validate:"gt=0"`
	RerankTopK      int     `yaml:"rerank_top_k" json:"rerank_top_k" mapstructure:"rerank_top_k" validate:"gt=0"`
	FinalLimit      int     `yaml:"final_limit" json:"final_limit" mapstructure:"final_limit" validate:"gt=0"`
	EnableReranking bool    `yaml:"enable_reranking" json:"enable_reranking" mapstructure:"enable_reranking"`
	MinSimilarity   float64 `yaml:"min_similarity" json:"min_similarity" mapstructure:"min_similarity" validate:"gte=0,lte=1"`
}

// TracingConfig controls the optional OTLP trace exporter. When
// disabled the daemon installs a no-op tracer provider.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Insecure    bool    `yaml:"insecure" json:"insecure" mapstructure:"insecure"`
}

// weightSumTolerance absorbs float rounding when checking that tier2
// weights sum to 1.0.
const weightSumTolerance = 1e-6

// ValidateSemantics checks cross-field constraints that struct tags
// cannot express. Called by the validator after tag validation.
func (c *Config) ValidateSemantics() error {
	if sum := c.Filtering.Tier2.WeightsSum(); math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("filtering.tier2 weights must sum to 1.0, got %.6f", sum)
	}

	if c.Filtering.Tier3.ClusterMinSize > c.Filtering.Tier3.MaxClusterSize {
		return fmt.Errorf("filtering.tier3.cluster_min_size (%d) exceeds max_cluster_size (%d)",
			c.Filtering.Tier3.ClusterMinSize, c.Filtering.Tier3.MaxClusterSize)
	}

	if c.Indexing.VectorDim != c.Embedding.Dimension {
		return fmt.Errorf("indexing.vector_dim (%d) must match embedding.dimension (%d)",
			c.Indexing.VectorDim, c.Embedding.Dimension)
	}

	return nil
}
