package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/tlsutil"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{EnableCORS: true, RateLimit: RateLimitConfig{Enabled: true, RPS: 5}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.BindAddress)
	assert.Equal(t, "/graphql", cfg.Path)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 10, cfg.MaxQueryDepth)
	assert.Equal(t, int64(1024*1024), cfg.MaxRequestSize)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
}

func TestConfig_DefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Timeout())
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "relative path", cfg: Config{Path: "graphql"}},
		{name: "bad timeout", cfg: Config{TimeoutStr: "soon"}},
		{name: "timeout too short", cfg: Config{TimeoutStr: "1ms"}},
		{name: "depth too large", cfg: Config{MaxQueryDepth: 51}},
		{name: "negative size", cfg: Config{MaxRequestSize: -1}},
		{name: "size too large", cfg: Config{MaxRequestSize: 200 * 1024 * 1024}},
		{name: "rate limit without rps", cfg: Config{RateLimit: RateLimitConfig{Enabled: true}}},
		{name: "negative burst", cfg: Config{RateLimit: RateLimitConfig{Enabled: true, RPS: 1, Burst: -1}}},
		{name: "tls without certificate", cfg: Config{TLS: tlsutil.ServerConfig{Enabled: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}
