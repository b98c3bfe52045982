// Package config provides unified configuration for the replay and stomp
// tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WaitMode selects how the dispatcher waits for an operation's deadline.
type WaitMode string

const (
	// WaitSpin busy-waits on the monotonic clock until the deadline.
	WaitSpin WaitMode = "spin"

	// WaitHybrid sleeps until shortly before the deadline, then spins.
	WaitHybrid WaitMode = "hybrid"
)

// Config holds the unified configuration for both tools.
type Config struct {
	// Replay configuration
	Replay ReplayConfig `json:"replay" yaml:"replay"`

	// Trace source configuration
	Trace TraceConfig `json:"trace" yaml:"trace"`

	// Report configuration
	Report ReportConfig `json:"report" yaml:"report"`

	// Stomp load generator configuration
	Stomp StompConfig `json:"stomp" yaml:"stomp"`
}

// ReplayConfig holds replay engine configuration.
type ReplayConfig struct {
	// Workers is the fixed worker pool size
	Workers int `json:"workers" yaml:"workers"`

	// BlockSize is the unit the trace counts blocks in (bytes, power of two)
	BlockSize int64 `json:"block_size" yaml:"block_size"`

	// Clamp relocates operations that extend past the target instead of
	// rejecting the trace
	Clamp bool `json:"clamp" yaml:"clamp"`

	// TimeCap stops trace loading once a record's offset exceeds it
	TimeCap time.Duration `json:"time_cap" yaml:"time_cap"`

	// PatternBufSize is the size of the shared write pattern buffer; no
	// trace operation may exceed it
	PatternBufSize int `json:"pattern_buf_size" yaml:"pattern_buf_size"`

	// WaitMode is the dispatcher wait strategy: spin, hybrid
	WaitMode WaitMode `json:"wait_mode" yaml:"wait_mode"`

	// SpinWindow is how long before the deadline the hybrid mode stops
	// sleeping and starts spinning
	SpinWindow time.Duration `json:"spin_window" yaml:"spin_window"`
}

// TraceConfig holds trace source configuration.
type TraceConfig struct {
	// Path is the trace location: empty or "-" for standard input, an
	// s3://bucket/key URL, or a local file path
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3:// paths)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 trace source configuration.
type S3Config struct {
	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (for S3-compatible storage)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// ReportConfig holds report output configuration.
type ReportConfig struct {
	// DBPath is the optional SQLite file the run is recorded to; empty
	// disables recording
	DBPath string `json:"db_path" yaml:"db_path"`
}

// StompConfig holds load generator configuration.
type StompConfig struct {
	// Readers is the number of random-read goroutines
	Readers int `json:"readers" yaml:"readers"`

	// Writers is the number of sequential-write goroutines
	Writers int `json:"writers" yaml:"writers"`

	// BufSize is the per-operation transfer size (bytes, power of two)
	BufSize int64 `json:"buf_size" yaml:"buf_size"`

	// Interval is the stats reporting interval
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Replay: ReplayConfig{
			Workers:        128,
			BlockSize:      512,
			Clamp:          false,
			TimeCap:        120 * time.Second,
			PatternBufSize: 128 * 1024,
			WaitMode:       WaitSpin,
			SpinWindow:     time.Millisecond,
		},
		Trace: TraceConfig{
			Path: "",
		},
		Report: ReportConfig{
			DBPath: "",
		},
		Stomp: StompConfig{
			Readers:  10,
			Writers:  10,
			BufSize:  8192,
			Interval: time.Second,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Replay.Workers < 1 {
		return fmt.Errorf("replay.workers must be at least 1, got %d", c.Replay.Workers)
	}

	if c.Replay.BlockSize < 1 || c.Replay.BlockSize&(c.Replay.BlockSize-1) != 0 {
		return fmt.Errorf("replay.block_size must be a positive power of two, got %d", c.Replay.BlockSize)
	}

	if c.Replay.TimeCap <= 0 {
		return fmt.Errorf("replay.time_cap must be positive, got %s", c.Replay.TimeCap)
	}

	if int64(c.Replay.PatternBufSize) < c.Replay.BlockSize {
		return fmt.Errorf("replay.pattern_buf_size must be at least one block, got %d", c.Replay.PatternBufSize)
	}

	switch c.Replay.WaitMode {
	case WaitSpin, WaitHybrid:
		// Valid modes
	default:
		return fmt.Errorf("invalid replay.wait_mode: %s (must be spin or hybrid)", c.Replay.WaitMode)
	}

	if c.Replay.WaitMode == WaitHybrid && c.Replay.SpinWindow <= 0 {
		return fmt.Errorf("replay.spin_window must be positive in hybrid mode, got %s", c.Replay.SpinWindow)
	}

	if c.Stomp.Readers < 0 || c.Stomp.Writers < 0 {
		return fmt.Errorf("stomp.readers and stomp.writers must be non-negative")
	}

	if c.Stomp.Readers == 0 && c.Stomp.Writers == 0 {
		return fmt.Errorf("stomp needs at least one reader or writer")
	}

	if c.Stomp.BufSize < 1 || c.Stomp.BufSize&(c.Stomp.BufSize-1) != 0 {
		return fmt.Errorf("stomp.buf_size must be a positive power of two, got %d", c.Stomp.BufSize)
	}

	if c.Stomp.Interval <= 0 {
		return fmt.Errorf("stomp.interval must be positive, got %s", c.Stomp.Interval)
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
// Environment variables use the TOSH_ prefix.
func LoadFromEnv(cfg *Config) {
	// Replay configuration
	if v := os.Getenv("TOSH_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Replay.Workers)
	}
	if v := os.Getenv("TOSH_BLOCK_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Replay.BlockSize)
	}
	if v := os.Getenv("TOSH_CLAMP"); v != "" {
		cfg.Replay.Clamp = v == "true" || v == "1"
	}
	if v := os.Getenv("TOSH_TIME_CAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Replay.TimeCap = d
		}
	}
	if v := os.Getenv("TOSH_PATTERN_BUF_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Replay.PatternBufSize)
	}
	if v := os.Getenv("TOSH_WAIT_MODE"); v != "" {
		cfg.Replay.WaitMode = WaitMode(v)
	}
	if v := os.Getenv("TOSH_SPIN_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Replay.SpinWindow = d
		}
	}

	// Trace source configuration
	if v := os.Getenv("TOSH_TRACE"); v != "" {
		cfg.Trace.Path = v
	}
	if v := os.Getenv("TOSH_S3_REGION"); v != "" {
		cfg.Trace.S3.Region = v
	}
	if v := os.Getenv("TOSH_S3_ENDPOINT"); v != "" {
		cfg.Trace.S3.Endpoint = v
	}
	if v := os.Getenv("TOSH_S3_PATH_STYLE"); v != "" {
		cfg.Trace.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Report configuration
	if v := os.Getenv("TOSH_REPORT_DB"); v != "" {
		cfg.Report.DBPath = v
	}

	// Stomp configuration
	if v := os.Getenv("TOSH_STOMP_READERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Stomp.Readers)
	}
	if v := os.Getenv("TOSH_STOMP_WRITERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Stomp.Writers)
	}
	if v := os.Getenv("TOSH_STOMP_BUF_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Stomp.BufSize)
	}
	if v := os.Getenv("TOSH_STOMP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stomp.Interval = d
		}
	}
}
