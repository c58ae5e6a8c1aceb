// Package metadata answers topology lookups (services, instances and
// endpoints) by translating them into structured document store queries and
// decoding the hits with the model codec.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/model"
	"github.com/c360/metaquery/pkg/timebucket"
)

// DefaultQueryMaxSize bounds list queries when no size is configured.
const DefaultQueryMaxSize = 5000

// Config holds metadata query settings.
type Config struct {
	// QueryMaxSize is the upper bound on rows returned by list queries
	QueryMaxSize int `json:"query_max_size" yaml:"query_max_size"`
}

// Validate fills defaults and checks the settings.
func (c *Config) Validate() error {
	if c.QueryMaxSize == 0 {
		c.QueryMaxSize = DefaultQueryMaxSize
	}
	if c.QueryMaxSize < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "query_max_size must be positive")
	}
	return nil
}

// QueryObserver receives the logical index, outcome and latency of every store query.
type QueryObserver func(index, outcome string, took time.Duration)

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIndexResolver sets the logical to physical index mapping
func WithIndexResolver(resolver docstore.IndexResolver) Option {
	return func(s *Store) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithQueryObserver registers a query observer
func WithQueryObserver(fn QueryObserver) Option {
	return func(s *Store) {
		s.observe = fn
	}
}

// Store is the metadata query DAO. It holds no per-request state and is safe
// for concurrent use when its client is.
type Store struct {
	client       docstore.Client
	resolver     docstore.IndexResolver
	queryMaxSize int
	logger       *slog.Logger
	observe      QueryObserver
}

// NewStore creates a Store over a document store client.
func NewStore(client docstore.Client, cfg Config, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Store", "NewStore", "require document store client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		client:       client,
		resolver:     docstore.NamespaceResolver{},
		queryMaxSize: cfg.QueryMaxSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "metadata")
	return s, nil
}

// ListServices returns services, optionally filtered by layer name and group.
// An empty filter places no constraint on its dimension.
func (s *Store) ListServices(ctx context.Context, layer, group string) ([]model.Service, error) {
	query := docstore.Bool()
	if layer != "" {
		l, err := model.ParseLayer(layer)
		if err != nil {
			return nil, err
		}
		query.AddMust(docstore.Term(model.FieldLayer, l.Value()))
	}
	if group != "" {
		query.AddMust(docstore.Term(model.FieldServiceGroup, group))
	}

	resp, err := s.search(ctx, "ListServices", model.ServiceTrafficIndex, query, s.queryMaxSize)
	if err != nil {
		return nil, err
	}
	return buildServices(resp)
}

// GetServices returns every row stored under a service id. A service seen in
// several layers yields one row per layer.
func (s *Store) GetServices(ctx context.Context, serviceID string) ([]model.Service, error) {
	query := docstore.Bool(docstore.Term(model.FieldServiceID, serviceID))

	resp, err := s.search(ctx, "GetServices", model.ServiceTrafficIndex, query, s.queryMaxSize)
	if err != nil {
		return nil, err
	}
	return buildServices(resp)
}

// ListInstances returns the instances of a service seen at or after the
// minute of startTS. endTS is accepted but does not bound the result: an
// instance still alive after the window is still listed.
func (s *Store) ListInstances(ctx context.Context, startTS, endTS int64, serviceID string) ([]model.ServiceInstance, error) {
	query := docstore.Bool(
		docstore.Range(model.FieldLastPing).Gte(timebucket.MinuteBucket(startTS)),
		docstore.Term(model.FieldServiceID, serviceID),
	)

	resp, err := s.search(ctx, "ListInstances", model.InstanceTrafficIndex, query, s.queryMaxSize)
	if err != nil {
		return nil, err
	}
	return buildInstances(resp)
}

// GetInstance looks an instance up by storage id. It returns nil without an
// error when no instance matches.
func (s *Store) GetInstance(ctx context.Context, instanceID string) (*model.ServiceInstance, error) {
	query := docstore.Bool(docstore.Term(model.FieldID, instanceID))

	resp, err := s.search(ctx, "GetInstance", model.InstanceTrafficIndex, query, 1)
	if err != nil {
		return nil, err
	}
	instances, err := buildInstances(resp)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, nil
	}
	return &instances[0], nil
}

// FindEndpoint returns up to limit endpoints of a service. A non-empty keyword
// adds a full-text match on the endpoint name.
func (s *Store) FindEndpoint(ctx context.Context, keyword, serviceID string, limit int) ([]model.Endpoint, error) {
	query := docstore.Bool(docstore.Term(model.FieldServiceID, serviceID))
	if keyword != "" {
		query.AddMust(docstore.Match(model.MatchField(model.FieldName), keyword))
	}

	resp, err := s.search(ctx, "FindEndpoint", model.EndpointTrafficIndex, query, limit)
	if err != nil {
		return nil, err
	}

	endpoints := make([]model.Endpoint, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		record, err := model.EndpointTrafficFromStorage(hit.Source)
		if err != nil {
			return nil, hitError(err, hit)
		}
		endpoints = append(endpoints, model.ToEndpoint(record))
	}
	return endpoints, nil
}

func (s *Store) search(ctx context.Context, method, logical string, query docstore.Query, size int) (*docstore.SearchResponse, error) {
	if size < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: negative limit %d", errors.ErrInvalidRequest, size),
			"Store", method, "check limit")
	}
	index := s.resolver.PhysicalIndex(logical)
	s.logger.Debug("metadata query", "method", method, "index", index, "size", size)

	start := time.Now()
	resp, err := s.client.Search(ctx, index, docstore.SearchRequest{Query: query, Size: size})
	if s.observe != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.observe(logical, outcome, time.Since(start))
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store", method, "search "+index)
	}
	return resp, nil
}

func buildServices(resp *docstore.SearchResponse) ([]model.Service, error) {
	services := make([]model.Service, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		record, err := model.ServiceTrafficFromStorage(hit.Source)
		if err != nil {
			return nil, hitError(err, hit)
		}
		services = append(services, model.ToService(record))
	}
	return services, nil
}

func buildInstances(resp *docstore.SearchResponse) ([]model.ServiceInstance, error) {
	instances := make([]model.ServiceInstance, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		record, err := model.InstanceTrafficFromStorage(hit.Source)
		if err != nil {
			return nil, hitError(err, hit)
		}
		instances = append(instances, model.ToServiceInstance(record))
	}
	return instances, nil
}

func hitError(err error, hit docstore.Hit) error {
	return fmt.Errorf("document %s/%s: %w", hit.Index, hit.ID, err)
}
