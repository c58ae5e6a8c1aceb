package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/docstore/elastic"
	"github.com/c360/metaquery/docstore/kvstore"
	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/gateway"
	"github.com/c360/metaquery/metadata"
	"github.com/c360/metaquery/metric"
)

// Storage backends
const (
	BackendElasticsearch = "elasticsearch"
	BackendNATSKV        = "nats-kv"
	BackendMemory        = "memory" // empty in-memory store, for local runs
)

// DefaultEnvPrefix prefixes environment overrides.
const DefaultEnvPrefix = "METAQUERY"

// Config represents the complete application configuration
type Config struct {
	Gateway gateway.Config `json:"gateway" yaml:"gateway"`
	Storage StorageConfig  `json:"storage" yaml:"storage"`
	Metrics metric.Config  `json:"metrics" yaml:"metrics"`
}

// StorageConfig selects and configures the document store
type StorageConfig struct {
	// Backend is one of elasticsearch, nats-kv or memory (default: elasticsearch)
	Backend string `json:"backend" yaml:"backend"`

	// QueryMaxSize caps list queries (default: 5000)
	QueryMaxSize int `json:"query_max_size" yaml:"query_max_size"`

	// Namespace prefixes physical index names ("<namespace>_<index>")
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	Elasticsearch elastic.Config         `json:"elasticsearch" yaml:"elasticsearch"`
	NATS          kvstore.Config         `json:"nats" yaml:"nats"`
	Breaker       docstore.BreakerConfig `json:"breaker" yaml:"breaker"`
}

// Validate checks the storage section and fills defaults
func (s *StorageConfig) Validate() error {
	if s.Backend == "" {
		s.Backend = BackendElasticsearch
	}
	s.Backend = strings.ToLower(s.Backend)

	md := metadata.Config{QueryMaxSize: s.QueryMaxSize}
	if err := md.Validate(); err != nil {
		return err
	}
	s.QueryMaxSize = md.QueryMaxSize

	for _, r := range s.Namespace {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "StorageConfig", "Validate",
				fmt.Sprintf("namespace %q must be lowercase alphanumeric with - or _", s.Namespace))
		}
	}

	switch s.Backend {
	case BackendElasticsearch:
		if err := s.Elasticsearch.Validate(); err != nil {
			return err
		}
	case BackendNATSKV:
		if err := s.NATS.Validate(); err != nil {
			return err
		}
	case BackendMemory:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "StorageConfig", "Validate",
			fmt.Sprintf("unknown backend %q", s.Backend))
	}

	return s.Breaker.Validate()
}

// MetadataConfig returns the metadata store settings
func (s *StorageConfig) MetadataConfig() metadata.Config {
	return metadata.Config{QueryMaxSize: s.QueryMaxSize}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "gateway section")
	}
	if err := c.Storage.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "storage section")
	}
	if err := c.Metrics.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "metrics section")
	}
	return nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Gateway: gateway.DefaultConfig(),
		Storage: StorageConfig{
			Backend:       BackendElasticsearch,
			QueryMaxSize:  metadata.DefaultQueryMaxSize,
			Elasticsearch: elastic.DefaultConfig(),
			NATS:          kvstore.DefaultConfig(),
			Breaker:       docstore.DefaultBreakerConfig(),
		},
		Metrics: metric.DefaultConfig(),
	}
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	roots      []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// AllowRoots confines every layer to the given directories. Layers are
// checked after symlinks resolve; with no roots any readable path is allowed.
func (l *Loader) AllowRoots(dirs ...string) {
	l.roots = append(l.roots, dirs...)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer in order and the environment
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	roots, err := cleanRoots(l.roots)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "resolve config roots")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path, roots)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged configuration")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment")
	}

	if l.validation {
		if err := ValidateSchema(cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRaw reads one layer as a generic map. JSON and YAML files are accepted.
func (l *Loader) loadRaw(path string, roots []string) (map[string]any, error) {
	resolved, err := resolveLayer(path, roots)
	if err != nil {
		return nil, err
	}
	data, err := readLayer(resolved)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, err
	}
	if depth := mapDepth(raw); depth > maxLayerDepth {
		return nil, fmt.Errorf("config nesting too deep: %d > %d", depth, maxLayerDepth)
	}
	return raw, nil
}

// toMap converts a Config into the generic form layers are merged in.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromMap decodes a merged map. Unknown keys are rejected so that typos in
// a layer surface instead of silently keeping the default.
func fromMap(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

func mapDepth(v any) int {
	switch t := v.(type) {
	case map[string]any:
		deepest := 0
		for _, child := range t {
			deepest = max(deepest, mapDepth(child))
		}
		return deepest + 1
	case []any:
		deepest := 0
		for _, child := range t {
			deepest = max(deepest, mapDepth(child))
		}
		return deepest + 1
	default:
		return 0
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			return "", false, nil
		}
		if err := checkEnvValue(key, val); err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	stringVars := []struct {
		name   string
		target *string
	}{
		{"GATEWAY_BIND_ADDRESS", &cfg.Gateway.BindAddress},
		{"GATEWAY_PATH", &cfg.Gateway.Path},
		{"GATEWAY_TIMEOUT", &cfg.Gateway.TimeoutStr},
		{"STORAGE_BACKEND", &cfg.Storage.Backend},
		{"STORAGE_NAMESPACE", &cfg.Storage.Namespace},
		{"ES_USERNAME", &cfg.Storage.Elasticsearch.Username},
		{"ES_PASSWORD", &cfg.Storage.Elasticsearch.Password},
		{"ES_API_KEY", &cfg.Storage.Elasticsearch.APIKey},
		{"NATS_URL", &cfg.Storage.NATS.URL},
		{"NATS_USERNAME", &cfg.Storage.NATS.Username},
		{"NATS_PASSWORD", &cfg.Storage.NATS.Password},
		{"NATS_TOKEN", &cfg.Storage.NATS.Token},
	}
	for _, s := range stringVars {
		val, ok, err := get(s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.target = val
		}
	}

	if val, ok, err := get("ES_ADDRESSES"); err != nil {
		return err
	} else if ok {
		cfg.Storage.Elasticsearch.Addresses = splitList(val)
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{"STORAGE_QUERY_MAX_SIZE", &cfg.Storage.QueryMaxSize},
		{"METRICS_PORT", &cfg.Metrics.Port},
	}
	for _, i := range intVars {
		val, ok, err := get(i.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, i.name, err)
		}
		*i.target = n
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Redacted returns a copy with credentials masked, for logging
func (c *Config) Redacted() Config {
	out := *c
	es := out.Storage.Elasticsearch
	if es.Password != "" {
		es.Password = "***"
	}
	if es.APIKey != "" {
		es.APIKey = "***"
	}
	out.Storage.Elasticsearch = es

	kv := out.Storage.NATS
	if kv.Password != "" {
		kv.Password = "***"
	}
	if kv.Token != "" {
		kv.Token = "***"
	}
	out.Storage.NATS = kv
	return out
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	redacted := c.Redacted()
	data, _ := redacted.marshalJSON()
	return string(data)
}

// marshalJSON encodes through the YAML form so durations stay readable
// ("30s") and load back.
func (c *Config) marshalJSON() ([]byte, error) {
	m, err := toMap(c)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(m, "", "  ")
}

// SaveToFile saves the configuration to a JSON or YAML file by extension
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = c.marshalJSON()
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.WrapFatal(err, "Config", "SaveToFile", "encode configuration")
	}
	return writeLayer(path, data)
}
