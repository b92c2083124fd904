// Package config loads scanlens settings from defaults, an optional YAML
// file and SCANLENS_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	serrors "github.com/exploopio/scanlens/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. SCANLENS_LOG_LEVEL.
const EnvPrefix = "SCANLENS"

// Config holds all scanlens configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Parsing ParsingConfig `mapstructure:"parsing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// Output is stdout, stderr or file.
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`

	// Rotation settings, used when Output is file.
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// ParsingConfig holds factory settings.
type ParsingConfig struct {
	PreviewSize         int           `mapstructure:"preview_size"`
	ChunkSize           int           `mapstructure:"chunk_size"`
	SlowThreshold       time.Duration `mapstructure:"slow_threshold"`
	MaxDecompressedSize int64         `mapstructure:"max_decompressed_size"`

	// Concurrency is the number of files the CLI parses at once.
	Concurrency int `mapstructure:"concurrency"`
}

// MetricsConfig holds Prometheus exposition settings. An empty Addr
// disables the endpoint.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("parsing.preview_size", 1<<20)
	v.SetDefault("parsing.chunk_size", 1<<20)
	v.SetDefault("parsing.slow_threshold", "10s")
	v.SetDefault("parsing.max_decompressed_size", int64(1<<30))
	v.SetDefault("parsing.concurrency", 4)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "scanlens")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := load(viper.New(), "")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration. path may be empty; when set it names a
// YAML file that must exist. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := load(v, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, serrors.E(serrors.KindInvalidInput, "config.Load", fmt.Sprintf("cannot read %s", path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, serrors.E(serrors.KindInvalidInput, "config.Load", "cannot decode configuration", err)
	}
	return &cfg, nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	v := &validator{}

	_, levelErr := logrus.ParseLevel(c.Log.Level)
	v.check("log.level", levelErr == nil, fmt.Sprintf("unknown log level %q", c.Log.Level))
	v.oneOf("log.format", c.Log.Format, "text", "json")
	v.oneOf("log.output", c.Log.Output, "stdout", "stderr", "file")
	if strings.EqualFold(c.Log.Output, "file") {
		v.required("log.file_path", c.Log.FilePath)
	}

	p := c.Parsing
	v.min("parsing.preview_size", int64(p.PreviewSize), 1).
		min("parsing.chunk_size", int64(p.ChunkSize), 1).
		minDuration("parsing.slow_threshold", p.SlowThreshold, time.Millisecond).
		min("parsing.max_decompressed_size", p.MaxDecompressedSize, 0).
		min("parsing.concurrency", int64(p.Concurrency), 1)

	if err := v.err(); err != nil {
		return serrors.E(serrors.KindInvalidInput, "config.Validate", "invalid configuration", err)
	}
	return nil
}
