package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestLoader_Defaults(t *testing.T) {
	l := newTestLoader(nil)
	l.EnableValidation(true)

	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Gateway.BindAddress)
	assert.Equal(t, "/graphql", cfg.Gateway.Path)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout())
	assert.Equal(t, BackendElasticsearch, cfg.Storage.Backend)
	assert.Equal(t, 5000, cfg.Storage.QueryMaxSize)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Storage.Elasticsearch.Addresses)
	assert.Equal(t, time.Minute, cfg.Storage.Breaker.Interval)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_ShippedConfig(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("..", "configs", "metaquery.yaml"))
	require.NoError(t, err)

	l := newTestLoader(nil)
	l.EnableValidation(true)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Gateway.BindAddress)
	assert.Equal(t, 12, cfg.Gateway.MaxQueryDepth)
	assert.True(t, cfg.Gateway.RateLimit.Enabled)
	assert.Equal(t, BackendElasticsearch, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Storage.Elasticsearch.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Storage.Elasticsearch.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Storage.Breaker.Timeout)
	assert.Equal(t, "metaquery_", cfg.Storage.NATS.BucketPrefix)
}

func TestValidateSchema(t *testing.T) {
	require.NoError(t, ValidateSchema(Default()))

	cfg := Default()
	cfg.Metrics.Port = 70000
	cfg.Gateway.Path = "graphql"
	err := ValidateSchema(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "metrics.port")
	assert.Contains(t, err.Error(), "gateway.path")

	cfg = Default()
	cfg.Storage.Backend = "NATS-KV"
	assert.NoError(t, ValidateSchema(cfg), "backend is matched case-insensitively")
}

func TestLoader_YAMLLayer(t *testing.T) {
	path := writeFile(t, "base.yaml", `
gateway:
  bind_address: ":9000"
  timeout: 5s
  max_query_depth: 6
storage:
  backend: nats-kv
  namespace: prod
  nats:
    url: nats://nats:4222
  breaker:
    interval: 30s
    failure_threshold: 3
metrics:
  enabled: false
`)
	l := newTestLoader(nil)
	l.EnableValidation(true)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Gateway.BindAddress)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout())
	assert.Equal(t, 6, cfg.Gateway.MaxQueryDepth)
	assert.Equal(t, "/graphql", cfg.Gateway.Path, "unset keys keep defaults")
	assert.Equal(t, BackendNATSKV, cfg.Storage.Backend)
	assert.Equal(t, "prod", cfg.Storage.Namespace)
	assert.Equal(t, "nats://nats:4222", cfg.Storage.NATS.URL)
	assert.Equal(t, 30*time.Second, cfg.Storage.Breaker.Interval)
	assert.Equal(t, uint32(3), cfg.Storage.Breaker.FailureThreshold)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoader_JSONLayersMerge(t *testing.T) {
	base := writeFile(t, "base.json", `{
  "storage": {"elasticsearch": {"addresses": ["http://es-1:9200"], "timeout": "3s"}, "query_max_size": 100}
}`)
	override := writeFile(t, "override.json", `{
  "storage": {"query_max_size": 200, "breaker": {"timeout": "45s"}}
}`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://es-1:9200"}, cfg.Storage.Elasticsearch.Addresses)
	assert.Equal(t, 3*time.Second, cfg.Storage.Elasticsearch.Timeout())
	assert.Equal(t, 200, cfg.Storage.QueryMaxSize)
	assert.Equal(t, 45*time.Second, cfg.Storage.Breaker.Timeout)
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"METAQUERY_GATEWAY_BIND_ADDRESS":   ":7000",
		"METAQUERY_ES_ADDRESSES":           "http://a:9200, http://b:9200",
		"METAQUERY_ES_USERNAME":            "elastic",
		"METAQUERY_ES_PASSWORD":            "secret",
		"METAQUERY_STORAGE_QUERY_MAX_SIZE": "250",
		"METAQUERY_METRICS_PORT":           "9191",
	})
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Gateway.BindAddress)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Storage.Elasticsearch.Addresses)
	assert.Equal(t, "elastic", cfg.Storage.Elasticsearch.Username)
	assert.Equal(t, 250, cfg.Storage.QueryMaxSize)
	assert.Equal(t, 9191, cfg.Metrics.Port)

	assert.NotContains(t, cfg.String(), "secret")
	assert.Equal(t, "secret", cfg.Storage.Elasticsearch.Password, "redaction works on a copy")
}

func TestLoader_EnvOverrideErrors(t *testing.T) {
	l := newTestLoader(map[string]string{"METAQUERY_METRICS_PORT": "ninety"})
	_, err := l.Load()
	require.Error(t, err)

	l = newTestLoader(map[string]string{"METAQUERY_NATS_URL": "nats://x\x00"})
	_, err = l.Load()
	require.Error(t, err)
}

func TestLoader_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "unknown key", file: "c.yaml", content: "gateway:\n  bind_adress: \":1\"\n"},
		{name: "bad backend", file: "c.yaml", content: "storage:\n  backend: cassandra\n"},
		{name: "broken json", file: "c.json", content: `{"gateway": `},
		{name: "unsupported extension", file: "c.toml", content: "x = 1"},
		{name: "bad namespace", file: "c.yaml", content: "storage:\n  namespace: Prod!\n"},
		{name: "bad duration", file: "c.yaml", content: "storage:\n  breaker:\n    interval: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(nil)
			l.EnableValidation(true)
			_, err := l.LoadFile(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	l := newTestLoader(nil)
	_, err := l.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestConfig_SaveAndReload(t *testing.T) {
	for _, name := range []string{"saved.json", "saved.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.Namespace = "staging"
			cfg.Storage.Breaker.Timeout = 42 * time.Second

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.SaveToFile(path))

			l := newTestLoader(nil)
			l.EnableValidation(true)
			loaded, err := l.LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "staging", loaded.Storage.Namespace)
			assert.Equal(t, 42*time.Second, loaded.Storage.Breaker.Timeout)
		})
	}
}

func TestStorageConfig_Validate(t *testing.T) {
	s := StorageConfig{Backend: "MEMORY"}
	require.NoError(t, s.Validate())
	assert.Equal(t, BackendMemory, s.Backend)
	assert.Equal(t, 5000, s.MetadataConfig().QueryMaxSize)

	s = StorageConfig{QueryMaxSize: -1, Backend: BackendMemory}
	assert.Error(t, s.Validate())

	s = StorageConfig{Backend: BackendElasticsearch}
	s.Elasticsearch.APIKey = "k"
	s.Elasticsearch.Username = "u"
	assert.Error(t, s.Validate())
}

func TestDeepMergeMaps(t *testing.T) {
	base := map[string]any{"a": 1, "n": map[string]any{"x": 1, "y": 2}}
	override := map[string]any{"n": map[string]any{"y": 3}, "b": nil, "c": "new"}

	merged := deepMergeMaps(base, override)
	assert.Equal(t, map[string]any{"a": 1, "n": map[string]any{"x": 1, "y": 3}, "c": "new"}, merged)
	assert.Equal(t, 2, base["n"].(map[string]any)["y"], "base is not mutated")
}
