// Package options provides functional options for the parser factory and
// for individual parse runs.
package options

import (
	"time"

	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/detect"
	"github.com/exploopio/scanlens/pkg/metrics"
	"github.com/exploopio/scanlens/pkg/registry"
)

// =============================================================================
// Factory Options
// =============================================================================

// Factory defaults.
const (
	DefaultPreviewSize   = 1 << 20 // 1 MiB
	DefaultChunkSize     = core.DefaultChunkSize
	DefaultSlowThreshold = 10 * time.Second
)

// FactoryConfig holds the final factory configuration.
type FactoryConfig struct {
	Registry  *registry.Registry
	Detector  *detect.Detector
	Logger    core.Logger
	Collector metrics.Collector

	// PreviewSize is the number of leading bytes used for detection and
	// parser selection.
	PreviewSize int

	// ChunkSize is the size of each chunk handed to parsers.
	ChunkSize int

	// SlowThreshold is the average parse time per tool above which the
	// factory logs a performance warning.
	SlowThreshold time.Duration

	// MaxDecompressedSize caps the expanded size of compressed inputs.
	// 0 uses the compress package default.
	MaxDecompressedSize int64
}

// FactoryOption is a function that configures the factory.
type FactoryOption func(*FactoryConfig)

// DefaultFactoryConfig returns default factory configuration.
func DefaultFactoryConfig() *FactoryConfig {
	return &FactoryConfig{
		PreviewSize:   DefaultPreviewSize,
		ChunkSize:     DefaultChunkSize,
		SlowThreshold: DefaultSlowThreshold,
	}
}

// ApplyFactoryOptions applies options to config and fills unset
// collaborators with the process-wide defaults.
func ApplyFactoryOptions(cfg *FactoryConfig, opts ...FactoryOption) {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Detector == nil {
		cfg.Detector = detect.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetDefaultLogger()
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.GetDefaultCollector()
	}
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = DefaultPreviewSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}
}

// WithRegistry sets the parser registry.
func WithRegistry(r *registry.Registry) FactoryOption {
	return func(c *FactoryConfig) {
		c.Registry = r
	}
}

// WithDetector sets the format detector.
func WithDetector(d *detect.Detector) FactoryOption {
	return func(c *FactoryConfig) {
		c.Detector = d
	}
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) FactoryOption {
	return func(c *FactoryConfig) {
		c.Logger = l
	}
}

// WithCollector sets the metrics collector.
func WithCollector(m metrics.Collector) FactoryOption {
	return func(c *FactoryConfig) {
		c.Collector = m
	}
}

// WithPreviewSize sets the detection preview size in bytes.
func WithPreviewSize(n int) FactoryOption {
	return func(c *FactoryConfig) {
		c.PreviewSize = n
	}
}

// WithChunkSize sets the parser chunk size in bytes.
func WithChunkSize(n int) FactoryOption {
	return func(c *FactoryConfig) {
		c.ChunkSize = n
	}
}

// WithSlowThreshold sets the slow-parse warning threshold.
func WithSlowThreshold(d time.Duration) FactoryOption {
	return func(c *FactoryConfig) {
		c.SlowThreshold = d
	}
}

// WithMaxDecompressedSize caps the expanded size of compressed inputs.
func WithMaxDecompressedSize(n int64) FactoryOption {
	return func(c *FactoryConfig) {
		c.MaxDecompressedSize = n
	}
}

// =============================================================================
// Parse Options
// =============================================================================

// ParseConfig holds per-run parse configuration.
type ParseConfig struct {
	// PreferredTool is tried before general selection.
	PreferredTool string

	// Progress receives the parser's progress notifications.
	Progress core.ProgressFunc
}

// ParseOption is a function that configures a parse run.
type ParseOption func(*ParseConfig)

// ApplyParseOptions builds a ParseConfig from opts.
func ApplyParseOptions(opts ...ParseOption) *ParseConfig {
	cfg := &ParseConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithPreferredTool sets the tool hint.
func WithPreferredTool(tool string) ParseOption {
	return func(c *ParseConfig) {
		c.PreferredTool = tool
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn core.ProgressFunc) ParseOption {
	return func(c *ParseConfig) {
		c.Progress = fn
	}
}
