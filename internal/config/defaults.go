package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	dataRoot := getDefaultDataRoot()

	return &Config{
		Storage: StorageConfig{
			DataRoot:             dataRoot,
			MaxBlobSize:          100 * 1024 * 1024,
			CompressionThreshold: 4096,
		},
		Capture: CaptureConfig{
			BufferSize: 10000,
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(dataRoot, "yinx.sock"),
			PIDFile:    filepath.Join(dataRoot, "yinx.pid"),
			LogLevel:   "info",
			LogFormat:  "text",
		},
		Filtering: FilteringConfig{
			Tier1: Tier1Config{
				MaxOccurrences:        3,
				NormalizationPatterns: defaultNormalizationPatterns(),
			},
			Tier2: Tier2Config{
				EntropyWeight:            0.3,
				UniquenessWeight:         0.3,
				TechnicalWeight:          0.3,
				ChangeWeight:             0.1,
				ScoreThresholdPercentile: 0.8,
				MaxTechnicalScore:        10.0,
				TechnicalPatterns:        defaultTechnicalPatterns(),
			},
			Tier3: Tier3Config{
				ClusterMinSize:         3,
				MaxClusterSize:         100,
				RepresentativeStrategy: "highest_entropy",
				ClusterPatterns:        defaultClusterPatterns(),
			},
		},
		Entities: defaultEntityPatterns(),
		Tools:    defaultToolPatterns(),
		Embedding: EmbeddingConfig{
			Provider:            "native",
			Model:               "sentence-transformers/all-MiniLM-L6-v2",
			Dimension:           384,
			BatchSize:           32,
			BatchTimeoutSeconds: 30,
		},
		Indexing: IndexingConfig{
			VectorDim:    384,
			HNSWM:        16,
			HNSWEfSearch: 100,
		},
		Retrieval: RetrievalConfig{
			RRFK:            60.0,
			SemanticWeight:  1.0,
			KeywordWeight:   1.0,
			RerankTopK:      50,
			FinalLimit:      10,
			EnableReranking: true,
			MinSimilarity:   0.0,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "yinx",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// getDefaultDataRoot returns the default yinx data directory.
// Uses ~/.yinx or falls back to a temporary directory if the user home
// cannot be determined.
func getDefaultDataRoot() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".yinx")
	}
	return filepath.Join(userHome, ".yinx")
}

// defaultNormalizationPatterns are applied by tier 1 before hashing so
// that lines differing only in volatile fields deduplicate together.
func defaultNormalizationPatterns() []NormalizationPatternConfig {
	return []NormalizationPatternConfig{
		{
			Name:        "timestamp_iso",
			Pattern:     `\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`,
			Replacement: "TIMESTAMP",
			Priority:    10,
		},
		{
			Name:        "timestamp_clock",
			Pattern:     `\b\d{2}:\d{2}:\d{2}\b`,
			Replacement: "TIME",
			Priority:    20,
		},
		{
			Name:        "uuid",
			Pattern:     `\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`,
			Replacement: "UUID",
			Priority:    30,
		},
		{
			Name:        "ipv4",
			Pattern:     `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
			Replacement: "IP",
			Priority:    40,
		},
		{
			Name:        "hex_long",
			Pattern:     `\b[0-9a-fA-F]{16,}\b`,
			Replacement: "HEX",
			Priority:    50,
		},
		{
			Name:        "number",
			Pattern:     `\b\d+\b`,
			Replacement: "N",
			Priority:    60,
		},
	}
}

// defaultTechnicalPatterns feed the tier 2 technical-content score.
func defaultTechnicalPatterns() []TechnicalPatternConfig {
	return []TechnicalPatternConfig{
		{Name: "cve", Pattern: `CVE-\d{4}-\d{4,}`, Weight: 3.0},
		{Name: "open_port", Pattern: `\b\d{1,5}/(?:tcp|udp)\s+open\b`, Weight: 2.5},
		{Name: "ip_address", Pattern: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, Weight: 1.5},
		{Name: "url", Pattern: `https?://[^\s]+`, Weight: 1.5},
		{Name: "hash", Pattern: `\b[0-9a-fA-F]{32,64}\b`, Weight: 2.0},
		{Name: "version", Pattern: `\b\d+\.\d+(?:\.\d+)*\b`, Weight: 1.0},
		{Name: "credential_marker", Pattern: `(?i)\b(?:password|passwd|token|secret|api[_-]?key)\b`, Weight: 2.5},
	}
}

// defaultClusterPatterns are the tier 3 normalization patterns used to
// group structurally similar lines.
func defaultClusterPatterns() []NormalizationPatternConfig {
	return []NormalizationPatternConfig{
		{
			Name:        "quoted_string",
			Pattern:     `"[^"]*"`,
			Replacement: "STR",
			Priority:    10,
		},
		{
			Name:        "path",
			Pattern:     `(?:/[\w.-]+)+/?`,
			Replacement: "PATH",
			Priority:    20,
		},
		{
			Name:        "ipv4",
			Pattern:     `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
			Replacement: "IP",
			Priority:    30,
		},
		{
			Name:        "number",
			Pattern:     `\b\d+\b`,
			Replacement: "N",
			Priority:    40,
		},
	}
}

// defaultEntityPatterns registers the built-in entity kinds. Each kind
// is plain configuration; deployments add kinds without code changes.
func defaultEntityPatterns() []EntityPatternConfig {
	return []EntityPatternConfig{
		{
			TypeName:      "ip_address",
			Pattern:       `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
			Confidence:    0.9,
			ContextWindow: 50,
			Description:   "IPv4 address",
		},
		{
			TypeName:      "hostname",
			Pattern:       `\b[a-zA-Z0-9][a-zA-Z0-9-]*(?:\.[a-zA-Z0-9][a-zA-Z0-9-]*)+\.[a-zA-Z]{2,}\b`,
			Confidence:    0.7,
			ContextWindow: 50,
			Description:   "fully qualified hostname",
		},
		{
			TypeName:      "open_port",
			Pattern:       `\b\d{1,5}/(?:tcp|udp)\b`,
			Confidence:    0.85,
			ContextWindow: 80,
			Description:   "port/protocol pair",
		},
		{
			TypeName:      "service_version",
			Pattern:       `\b[A-Za-z][\w.-]+/\d+\.\d+(?:\.\d+)?\w*`,
			Confidence:    0.75,
			ContextWindow: 80,
			Description:   "service name with version",
		},
		{
			TypeName:      "url",
			Pattern:       `https?://[^\s"'<>]+`,
			Confidence:    0.9,
			ContextWindow: 40,
			Description:   "HTTP or HTTPS URL",
		},
		{
			TypeName:      "email",
			Pattern:       `\b[\w.+-]+@[\w-]+\.[\w.-]+\b`,
			Confidence:    0.85,
			ContextWindow: 40,
			Description:   "email address",
		},
		{
			TypeName:      "cve",
			Pattern:       `CVE-\d{4}-\d{4,}`,
			Confidence:    0.95,
			ContextWindow: 120,
			Description:   "CVE identifier",
		},
		{
			TypeName:      "hash",
			Pattern:       `\b[0-9a-fA-F]{32}\b|\b[0-9a-fA-F]{40}\b|\b[0-9a-fA-F]{64}\b`,
			Confidence:    0.8,
			ContextWindow: 60,
			Description:   "MD5, SHA-1 or SHA-256 digest",
		},
		{
			TypeName:      "credential_password",
			Pattern:       `(?i)password\s*[:=]\s*\S+`,
			Confidence:    0.7,
			ContextWindow: 60,
			Redact:        true,
			Description:   "inline password assignment",
		},
		{
			TypeName:      "credential_token",
			Pattern:       `(?i)(?:token|api[_-]?key|secret)\s*[:=]\s*\S+`,
			Confidence:    0.7,
			ContextWindow: 60,
			Redact:        true,
			Description:   "inline token or API key assignment",
		},
		{
			TypeName:      "file_path",
			Pattern:       `(?:/[\w.-]+){2,}`,
			Confidence:    0.6,
			ContextWindow: 40,
			Description:   "absolute file path",
		},
	}
}

// defaultToolPatterns registers the built-in tool detectors.
func defaultToolPatterns() []ToolPatternConfig {
	return []ToolPatternConfig{
		{
			Name:            "nmap",
			CommandPatterns: []string{`^nmap\b`, `^sudo nmap\b`},
			EntityHints:     []string{"ip_address", "open_port", "service_version"},
			OutputPatterns: []OutputPatternConfig{
				{Pattern: `Nmap scan report for`, Section: "host"},
				{Pattern: `^\d{1,5}/(?:tcp|udp)\s+open`, Section: "ports"},
			},
		},
		{
			Name:            "gobuster",
			CommandPatterns: []string{`^gobuster\b`},
			EntityHints:     []string{"url", "file_path"},
			OutputPatterns: []OutputPatternConfig{
				{Pattern: `Status:\s*\d{3}`, Section: "findings"},
			},
		},
		{
			Name:            "nikto",
			CommandPatterns: []string{`^nikto\b`},
			EntityHints:     []string{"url", "cve"},
			OutputPatterns: []OutputPatternConfig{
				{Pattern: `^\+ `, Section: "findings"},
			},
		},
		{
			Name:            "hydra",
			CommandPatterns: []string{`^hydra\b`},
			EntityHints:     []string{"credential_password", "ip_address"},
			OutputPatterns: []OutputPatternConfig{
				{Pattern: `login:\s*\S+\s+password:\s*\S+`, Section: "credentials"},
			},
		},
		{
			Name:            "sqlmap",
			CommandPatterns: []string{`^sqlmap\b`},
			EntityHints:     []string{"url"},
			OutputPatterns: []OutputPatternConfig{
				{Pattern: `Parameter:\s*\S+`, Section: "injection"},
			},
		},
		{
			Name:            "curl",
			CommandPatterns: []string{`^curl\b`},
			EntityHints:     []string{"url"},
		},
		{
			Name:            "dig",
			CommandPatterns: []string{`^dig\b`, `^nslookup\b`},
			EntityHints:     []string{"hostname", "ip_address"},
		},
	}
}
