// Package config provides configuration for the pxindex command.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pxtools/pxindex/internal/paradox"
)

// Config holds everything one index build needs.
type Config struct {
	// Input is the table file to index
	Input string `json:"input" yaml:"input"`

	// Output is the index file to create
	Output string `json:"output" yaml:"output"`

	// SecondaryIndex is the 1-based field of a secondary index; 0 builds
	// the primary index
	SecondaryIndex int `json:"secondary_index" yaml:"secondary_index"`

	// Verbose enables progress logging on stderr
	Verbose bool `json:"verbose" yaml:"verbose"`

	// UseStreamInput reads the input through the stream reader
	// (memory-mapped, snappy aware) instead of direct file access
	UseStreamInput bool `json:"use_stream_input" yaml:"use_stream_input"`

	// AtomicReplace writes to a temporary file and renames it on success
	AtomicReplace bool `json:"atomic_replace" yaml:"atomic_replace"`

	// BlockSizeKB is the block size of the created index file in KiB
	BlockSizeKB int `json:"block_size_kb" yaml:"block_size_kb"`

	// MaxSortMemoryMB bounds the memory used to sort secondary keys; 0 is unlimited
	MaxSortMemoryMB int `json:"max_sort_memory_mb" yaml:"max_sort_memory_mb"`

	// CatalogPath is an optional SQLite database recording every build
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`

	// MetricsFile is an optional Prometheus textfile written after the build
	MetricsFile string `json:"metrics_file" yaml:"metrics_file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AtomicReplace:   true,
		BlockSizeKB:     paradox.DefaultBlockSizeKB,
		MaxSortMemoryMB: 1024,
	}
}

// MaxSortBytes returns the sort memory limit in bytes.
func (c *Config) MaxSortBytes() int64 {
	return int64(c.MaxSortMemoryMB) * 1024 * 1024
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("output file is required")
	}
	if c.Input == "" {
		return fmt.Errorf("input file is required")
	}
	if c.SecondaryIndex < 0 {
		return fmt.Errorf("secondary_index must not be negative, got %d", c.SecondaryIndex)
	}
	if c.BlockSizeKB < paradox.MinBlockSizeKB || c.BlockSizeKB > paradox.MaxBlockSizeKB {
		return fmt.Errorf("block_size_kb must be between %d and %d, got %d",
			paradox.MinBlockSizeKB, paradox.MaxBlockSizeKB, c.BlockSizeKB)
	}
	if c.MaxSortMemoryMB < 0 {
		return fmt.Errorf("max_sort_memory_mb must not be negative, got %d", c.MaxSortMemoryMB)
	}
	if filepath.Clean(c.Input) == filepath.Clean(c.Output) {
		return fmt.Errorf("output file %s would overwrite the input", c.Output)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PXINDEX_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PXINDEX_INPUT"); v != "" {
		cfg.Input = v
	}
	if v := os.Getenv("PXINDEX_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("PXINDEX_SECONDARY_INDEX"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.SecondaryIndex)
	}
	if v := os.Getenv("PXINDEX_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v, cfg.Verbose)
	}
	if v := os.Getenv("PXINDEX_USE_STREAM_INPUT"); v != "" {
		cfg.UseStreamInput = parseBool(v, cfg.UseStreamInput)
	}
	if v := os.Getenv("PXINDEX_ATOMIC_REPLACE"); v != "" {
		cfg.AtomicReplace = parseBool(v, cfg.AtomicReplace)
	}
	if v := os.Getenv("PXINDEX_BLOCK_SIZE_KB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.BlockSizeKB)
	}
	if v := os.Getenv("PXINDEX_MAX_SORT_MEMORY_MB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.MaxSortMemoryMB)
	}
	if v := os.Getenv("PXINDEX_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("PXINDEX_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
