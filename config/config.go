package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Depthflow DepthflowConfig `yaml:"depthflow"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Reader    ReaderConfig    `yaml:"reader"`
	Processor ProcessorConfig `yaml:"processor"`
	Writer    WriterConfig    `yaml:"writer"`
	Source    SourceConfig    `yaml:"source"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DepthflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer   int `yaml:"raw_buffer"`
	QuoteBuffer int `yaml:"quote_buffer"`
}

type ReaderConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ProcessorConfig controls the depth processor. Depth is the cumulative
// quantity quotes are priced at; it is a decimal string so exact values
// like "0.5" survive untouched.
type ProcessorConfig struct {
	MaxWorkers int    `yaml:"max_workers"`
	Depth      string `yaml:"depth"`
}

// QuoteDepth parses the configured pricing depth. LoadConfig guarantees it
// parses and is positive, so callers may use the value directly.
func (p ProcessorConfig) QuoteDepth() (decimal.Decimal, error) {
	depth := p.Depth
	if depth == "" {
		depth = "1"
	}
	d, err := decimal.NewFromString(depth)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid processor depth %q: %w", depth, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("processor depth must be positive, got %q", depth)
	}
	return d, nil
}

type WriterConfig struct {
	Console ConsoleWriterConfig `yaml:"console"`
	Buffer  BufferConfig        `yaml:"buffer"`
}

type ConsoleWriterConfig struct {
	Enabled           bool    `yaml:"enabled"`
	QuotesPerSecond   float64 `yaml:"quotes_per_second"`
	Burst             int     `yaml:"burst"`
	DisplayPrecision  int32   `yaml:"display_precision"`
}

type BufferConfig struct {
	MaxSize       int           `yaml:"max_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
	Kucoin  KucoinSourceConfig  `yaml:"kucoin"`
	Okx     OkxSourceConfig     `yaml:"okx"`
}

type DepthStreamConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

type BinanceSourceConfig struct {
	Depth DepthStreamConfig `yaml:"depth"`
}

type BybitSourceConfig struct {
	Depth DepthStreamConfig `yaml:"depth"`
}

type KucoinSourceConfig struct {
	ConnectionPool    ConnectionPoolConfig `yaml:"connection_pool"`
	Depth             DepthStreamConfig    `yaml:"depth"`
	ReadBufferBytes   int                  `yaml:"read_buffer_bytes"`
	ReadMessageBuffer int                  `yaml:"read_message_buffer"`
}

type OkxSourceConfig struct {
	Depth DepthStreamConfig `yaml:"depth"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Processor: ProcessorConfig{Depth: "1"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Depthflow.Name == "" {
		return fmt.Errorf("depthflow.name is required")
	}

	if cfg.Depthflow.Version == "" {
		return fmt.Errorf("depthflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.QuoteBuffer <= 0 {
		return fmt.Errorf("channels.quote_buffer must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if _, err := cfg.Processor.QuoteDepth(); err != nil {
		return err
	}

	if cfg.Writer.Buffer.FlushInterval <= 0 {
		return fmt.Errorf("writer.buffer.flush_interval must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
