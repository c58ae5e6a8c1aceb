package gateway

import (
	"fmt"
	"time"

	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/tlsutil"
)

// Config holds configuration for the query gateway
type Config struct {
	// BindAddress is the HTTP bind address (default: ":8080")
	BindAddress string `json:"bind_address" yaml:"bind_address"`

	// Path is the query endpoint path (default: "/graphql")
	Path string `json:"path" yaml:"path"`

	// TimeoutStr bounds one query including its store round-trips (default: "30s")
	TimeoutStr string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxQueryDepth limits query nesting depth (default: 10)
	MaxQueryDepth int `json:"max_query_depth,omitempty" yaml:"max_query_depth,omitempty"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`

	// EnableCORS enables CORS headers
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (default: ["*"] when CORS is enabled)
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`

	// Compression gzips responses for clients that accept it
	Compression bool `json:"compression" yaml:"compression"`

	// RateLimit throttles queries per client address
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// TLS serves HTTPS, with certificates from files or ACME
	TLS tlsutil.ServerConfig `json:"tls" yaml:"tls"`

	// timeout is the parsed duration (internal use)
	timeout time.Duration
}

// RateLimitConfig configures per-client rate limiting
type RateLimitConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	RPS     float64 `json:"rps"     yaml:"rps"`
	Burst   int     `json:"burst"   yaml:"burst"`
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":8080"
	}

	if c.Path == "" {
		c.Path = "/graphql"
	}
	if c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"path must start with /")
	}

	if c.TimeoutStr == "" {
		c.timeout = 30 * time.Second
	} else {
		timeout, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid timeout format: %s", c.TimeoutStr))
		}
		if timeout < 100*time.Millisecond || timeout > 5*time.Minute {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"timeout must be between 100ms and 5m")
		}
		c.timeout = timeout
	}

	if c.MaxQueryDepth == 0 {
		c.MaxQueryDepth = 10
	}
	if c.MaxQueryDepth < 1 || c.MaxQueryDepth > 50 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_query_depth must be between 1 and 50")
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024
	}
	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"rate_limit.rps must be positive")
		}
		if c.RateLimit.Burst == 0 {
			c.RateLimit.Burst = max(1, int(c.RateLimit.RPS))
		}
		if c.RateLimit.Burst < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"rate_limit.burst cannot be negative")
		}
	}

	if err := c.TLS.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "tls section")
	}

	return nil
}

// Timeout returns the parsed timeout duration
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		BindAddress:    ":8080",
		Path:           "/graphql",
		TimeoutStr:     "30s",
		MaxQueryDepth:  10,
		MaxRequestSize: 1024 * 1024,
		EnableCORS:     true,
		CORSOrigins:    []string{"*"},
		Compression:    true,
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     50,
			Burst:   100,
		},
	}
}
