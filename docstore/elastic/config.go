package elastic

import (
	"fmt"
	"net/http"
	"time"

	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/retry"
	"github.com/c360/metaquery/pkg/tlsutil"
)

// Config holds the Elasticsearch connection settings.
type Config struct {
	// Addresses lists the cluster nodes (default: ["http://localhost:9200"])
	Addresses []string `json:"addresses" yaml:"addresses"`

	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"  yaml:"api_key,omitempty"`

	// TimeoutStr bounds a single search round-trip (default: "10s")
	TimeoutStr string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Retry controls retries of transient failures
	Retry retry.Config `json:"retry" yaml:"retry"`

	// TLS verifies the cluster certificate and optionally presents a client one
	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`

	timeout   time.Duration
	transport http.RoundTripper
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		Addresses:  []string{"http://localhost:9200"},
		TimeoutStr: "10s",
		Retry:      retry.DefaultConfig(),
		timeout:    10 * time.Second,
	}
}

// Validate fills defaults and checks the settings.
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		c.Addresses = []string{"http://localhost:9200"}
	}
	for _, addr := range c.Addresses {
		if addr == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "empty elasticsearch address")
		}
	}
	if c.APIKey != "" && c.Username != "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"api_key and username are mutually exclusive")
	}

	if c.TimeoutStr == "" {
		c.timeout = 10 * time.Second
	} else {
		timeout, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid timeout format: %s", c.TimeoutStr))
		}
		if timeout <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "timeout must be positive")
		}
		c.timeout = timeout
	}

	if err := c.TLS.Validate(); err != nil {
		return err
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig()
	}
	return nil
}

// Timeout returns the parsed per-request timeout
func (c *Config) Timeout() time.Duration {
	return c.timeout
}
