// Package config loads and validates connector configuration.
// All fatal configuration errors are reported here, before any object in
// the store is touched.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/csvtap/csvtap/pkg/decode"
	"github.com/csvtap/csvtap/pkg/tables"
)

// Config holds all csvtap configuration.
type Config struct {
	// Source bucket and optional global listing prefix.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	S3 S3Config `yaml:"s3"`

	Tables []tables.Config `yaml:"tables"`

	// Dialect options applied to every table's files.
	Delimiter  string `yaml:"delimiter"`
	QuoteChar  string `yaml:"quote_char"`
	EscapeChar string `yaml:"escape_char"`
	Encoding   string `yaml:"encoding"`
	Header     *bool  `yaml:"header"`

	// StartDate is the initial watermark for tables with no prior state.
	StartDate string `yaml:"start_date"`

	// SampleRows bounds how many rows schema inference reads per file.
	SampleRows int `yaml:"sample_rows"`

	// MalformedRowThreshold is the fatal malformed-row rate in [0,1];
	// zero disables the check. Scope decides whether the rate is
	// evaluated per file or across a whole table.
	MalformedRowThreshold float64 `yaml:"malformed_row_threshold"`
	MalformedRowScope     string  `yaml:"malformed_row_scope"`

	State StateConfig `yaml:"state"`
	Retry RetryConfig `yaml:"retry"`
}

// S3Config holds client options for the source bucket.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// StateConfig selects where bookmarks persist.
type StateConfig struct {
	// Backend is one of "file", "redis", "s3".
	Backend string `yaml:"backend"`

	// Path is the state file location for the file backend.
	Path string `yaml:"path"`

	// Redis backend options.
	RedisAddress  string `yaml:"redis_address"`
	RedisPassword string `yaml:"redis_password"`
	RedisDatabase int    `yaml:"redis_database"`
	RedisKey      string `yaml:"redis_key"`

	// S3 backend options.
	S3Bucket string `yaml:"s3_bucket"`
	S3Key    string `yaml:"s3_key"`
}

// RetryConfig bounds retries on transient store errors.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Default returns the default configuration.
func Default() *Config {
	header := true
	return &Config{
		Delimiter:         ",",
		QuoteChar:         `"`,
		Encoding:          "utf-8",
		Header:            &header,
		SampleRows:        1000,
		MalformedRowScope: string(decode.ScopePerFile),
		State: StateConfig{
			Backend: "file",
			Path:    "csvtap-state.json",
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
		},
	}
}

// Load reads a config file over the defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.loadEnv()
	return cfg, nil
}

// loadEnv applies environment overrides for the settings that differ
// between deployments of the same config file.
func (c *Config) loadEnv() {
	if v := os.Getenv("CSVTAP_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("CSVTAP_STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("CSVTAP_REDIS_ADDRESS"); v != "" {
		c.State.RedisAddress = v
	}
	if v := os.Getenv("CSVTAP_SAMPLE_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SampleRows = n
		}
	}
}

// Dialect builds the decoder dialect from the config.
func (c *Config) Dialect() decode.Dialect {
	d := decode.DefaultDialect()
	if c.Delimiter != "" {
		d.Delimiter = c.Delimiter[0]
	}
	if c.QuoteChar != "" {
		d.Quote = c.QuoteChar[0]
	}
	if c.EscapeChar != "" {
		d.Escape = c.EscapeChar[0]
	}
	if c.Encoding != "" {
		d.Encoding = c.Encoding
	}
	if c.Header != nil {
		d.Header = *c.Header
	}
	return d
}

// ParsedStartDate parses start_date, accepting a date or RFC3339 time.
func (c *Config) ParsedStartDate() (time.Time, error) {
	if c.StartDate == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, c.StartDate); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start_date %q (want RFC3339 or YYYY-MM-DD)", c.StartDate)
}

// Validate front-loads every fatal configuration error.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	if _, err := tables.NewGrouper(c.Tables); err != nil {
		return err
	}

	if len(c.Delimiter) > 1 || len(c.QuoteChar) > 1 || len(c.EscapeChar) > 1 {
		return fmt.Errorf("delimiter, quote_char and escape_char must be single characters")
	}
	if err := c.Dialect().Validate(); err != nil {
		return fmt.Errorf("invalid dialect: %w", err)
	}

	if _, err := c.ParsedStartDate(); err != nil {
		return err
	}

	if c.SampleRows < 0 {
		return fmt.Errorf("sample_rows must be >= 0")
	}
	if c.MalformedRowThreshold < 0 || c.MalformedRowThreshold > 1 {
		return fmt.Errorf("malformed_row_threshold must be in [0,1]")
	}
	if _, err := decode.ParseThresholdScope(c.MalformedRowScope); err != nil {
		return err
	}

	switch c.State.Backend {
	case "", "file":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case "redis":
		if c.State.RedisAddress == "" {
			return fmt.Errorf("state.redis_address is required for the redis backend")
		}
	case "s3":
		if c.State.S3Bucket == "" {
			return fmt.Errorf("state.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q (want file, redis or s3)", c.State.Backend)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}

	return nil
}
