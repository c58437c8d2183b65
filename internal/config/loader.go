package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/neur0map/yinx/internal/util"
)

// ConfigLoader handles loading configuration from files.
type ConfigLoader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperConfigLoader implements ConfigLoader using Viper.
type viperConfigLoader struct {
	validator ConfigValidator
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(validator ConfigValidator) ConfigLoader {
	return &viperConfigLoader{
		validator: validator,
	}
}

// Load loads configuration from the specified file path.
// Returns an error if the file doesn't exist or cannot be parsed.
func (l *viperConfigLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyInterpolation(&cfg)

	if cfg.PatternsFile != "" {
		set, err := LoadPatternSet(cfg.PatternsFile)
		if err != nil {
			return nil, err
		}
		set.applyTo(&cfg)
	}

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration.
func (l *viperConfigLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, fmt.Errorf("default configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	cfg, err := l.Load(path)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} references inside string values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateString replaces ${VAR_NAME} with environment variable
// values. Unset variables leave the reference unchanged.
func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}

// applyInterpolation expands environment variable references in the
// path-like and name-like string fields of the configuration. Path
// fields additionally get tilde expansion.
func applyInterpolation(cfg *Config) {
	cfg.Storage.DataRoot = interpolatePath(cfg.Storage.DataRoot)
	cfg.Daemon.SocketPath = interpolatePath(cfg.Daemon.SocketPath)
	cfg.Daemon.PIDFile = interpolatePath(cfg.Daemon.PIDFile)
	cfg.PatternsFile = interpolatePath(cfg.PatternsFile)
	cfg.Daemon.LogLevel = interpolateString(cfg.Daemon.LogLevel)
	cfg.Embedding.Provider = interpolateString(cfg.Embedding.Provider)
	cfg.Embedding.Model = interpolateString(cfg.Embedding.Model)
}

// interpolatePath expands ${VAR} references and a leading tilde.
func interpolatePath(s string) string {
	expanded, err := util.ExpandPath(interpolateString(s))
	if err != nil {
		return interpolateString(s)
	}
	return expanded
}
