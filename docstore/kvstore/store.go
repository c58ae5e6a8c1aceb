// Package kvstore implements docstore.Store on NATS JetStream key-value
// buckets, one bucket per index. Searches scan the bucket and evaluate the
// query in process with docstore.Matches, so it suits small deployments and
// tests rather than large fleets.
package kvstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/natsclient"
	"github.com/c360/metaquery/pkg/tlsutil"
)

// Config holds the KV backend settings.
type Config struct {
	// URL of the NATS server (default: "nats://localhost:4222")
	URL string `json:"url" yaml:"url"`

	// BucketPrefix is prepended to index names to form bucket names
	BucketPrefix string `json:"bucket_prefix,omitempty" yaml:"bucket_prefix,omitempty"`

	// Replicas for buckets created by Put (default: 1)
	Replicas int `json:"replicas,omitempty" yaml:"replicas,omitempty"`

	// Authentication: username/password or token
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty"    yaml:"token,omitempty"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// ClientOptions returns the connection options these settings imply.
func (c *Config) ClientOptions() ([]natsclient.ClientOption, error) {
	var opts []natsclient.ClientOption
	if c.Username != "" {
		opts = append(opts, natsclient.WithCredentials(c.Username, c.Password))
	}
	if c.Token != "" {
		opts = append(opts, natsclient.WithToken(c.Token))
	}
	tlsConfig, err := tlsutil.LoadClientConfig(c.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}
	return opts, nil
}

// DefaultConfig returns the default KV backend settings.
func DefaultConfig() Config {
	return Config{URL: "nats://localhost:4222", Replicas: 1}
}

// Validate fills defaults and checks the settings.
func (c *Config) Validate() error {
	if c.URL == "" {
		c.URL = "nats://localhost:4222"
	}
	if c.Replicas == 0 {
		c.Replicas = 1
	}
	if c.Replicas < 0 || c.Replicas > 5 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "replicas must be between 1 and 5")
	}
	if c.Token != "" && c.Username != "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"token and username are mutually exclusive")
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	for _, r := range c.BucketPrefix {
		if !validBucketRune(r) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("bucket_prefix contains %q", r))
		}
	}
	return nil
}

func validBucketRune(r rune) bool {
	return r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

type record struct {
	ID     string         `json:"id"`
	Source map[string]any `json:"source"`
}

// Store is a docstore.Store over JetStream KV.
type Store struct {
	client *natsclient.Client
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*natsclient.KVStore
}

// New creates a store on a connected client.
func New(client *natsclient.Client, cfg Config, logger *slog.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "Store", "New", "require NATS client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "kvstore"),
		buckets: make(map[string]*natsclient.KVStore),
	}, nil
}

// BucketName returns the bucket that holds an index.
func (s *Store) BucketName(index string) string {
	return s.cfg.BucketPrefix + strings.Map(func(r rune) rune {
		if validBucketRune(r) {
			return r
		}
		return '_'
	}, index)
}

func (s *Store) bucket(ctx context.Context, index string, create bool) (*natsclient.KVStore, error) {
	name := s.BucketName(index)

	s.mu.Lock()
	defer s.mu.Unlock()

	if kv, ok := s.buckets[name]; ok {
		return kv, nil
	}

	var kv *natsclient.KVStore
	var err error
	if create {
		kv, err = s.client.EnsureBucket(ctx, jetstream.KeyValueConfig{
			Bucket:   name,
			Replicas: s.cfg.Replicas,
		})
	} else {
		kv, err = s.client.OpenBucket(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	s.buckets[name] = kv
	return kv, nil
}

// EncodeKey maps a document id to a valid KV key.
func EncodeKey(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// Put implements docstore.Writer.
func (s *Store) Put(ctx context.Context, index, id string, doc map[string]any) error {
	if index == "" || id == "" {
		return errors.WrapInvalid(errors.ErrInvalidRequest, "Store", "Put", "require index and id")
	}
	value, err := json.Marshal(record{ID: id, Source: doc})
	if err != nil {
		return errors.WrapInvalid(err, "Store", "Put", "encode document")
	}

	kv, err := s.bucket(ctx, index, true)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, EncodeKey(id), value); err != nil {
		return errors.WrapTransient(err, "Store", "Put", "put "+id)
	}
	return nil
}

// Search implements docstore.Client. Hits are ordered by document id. A
// missing bucket yields no hits.
func (s *Store) Search(ctx context.Context, index string, req docstore.SearchRequest) (*docstore.SearchResponse, error) {
	if err := docstore.ValidateRequest(index, req); err != nil {
		return nil, err
	}

	resp := &docstore.SearchResponse{Hits: []docstore.Hit{}}
	kv, err := s.bucket(ctx, index, false)
	if err != nil {
		if errors.Is(err, errors.ErrBucketNotFound) {
			return resp, nil
		}
		return nil, err
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err),
			"Store", "Search", "list keys of "+kv.Bucket())
	}

	records := make([]record, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if natsclient.IsKVNotFoundError(err) {
				continue
			}
			return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err),
				"Store", "Search", "get "+key)
		}
		rec, err := decodeRecord(entry.Value)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	for _, rec := range records {
		if !docstore.Matches(req.Query, rec.ID, rec.Source) {
			continue
		}
		resp.Total++
		if len(resp.Hits) < req.Size {
			resp.Hits = append(resp.Hits, docstore.Hit{Index: index, ID: rec.ID, Source: rec.Source})
		}
	}

	s.logger.Debug("kv search", "bucket", kv.Bucket(), "scanned", len(records), "total", resp.Total)
	return resp, nil
}

func decodeRecord(value []byte) (record, error) {
	var rec record
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return rec, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrMalformedResponse, err),
			"Store", "Search", "decode record")
	}
	if rec.Source == nil {
		rec.Source = map[string]any{}
	}
	return rec, nil
}
