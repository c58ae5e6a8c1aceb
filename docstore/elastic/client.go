// Package elastic implements docstore.Client on Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/retry"
	"github.com/c360/metaquery/pkg/tlsutil"
)

// Client is a docstore.Store backed by an Elasticsearch cluster.
type Client struct {
	es     *elasticsearch.Client
	cfg    Config
	logger *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTransport overrides the HTTP transport, mainly for tests.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.cfg.transport = transport
	}
}

// New creates a client. It does not contact the cluster; use Ping for that.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "elasticsearch")

	if c.cfg.transport == nil && c.cfg.TLS.Enabled {
		tlsConfig, err := tlsutil.LoadClientConfig(c.cfg.TLS)
		if err != nil {
			return nil, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		c.cfg.transport = transport
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    c.cfg.Addresses,
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
		APIKey:       c.cfg.APIKey,
		Transport:    c.cfg.transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "New", "create elasticsearch client")
	}
	c.es = es
	return c, nil
}

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err), "Client", "Ping", "ping cluster")
	}
	defer res.Body.Close()
	if res.IsError() {
		return classifyStatus(res, "Ping")
	}
	return nil
}

// Search implements docstore.Client. Transient failures are retried per the
// configured policy; missing indices yield no hits.
func (c *Client) Search(ctx context.Context, index string, req docstore.SearchRequest) (*docstore.SearchResponse, error) {
	if err := docstore.ValidateRequest(index, req); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req.Source())
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Search", "encode search body")
	}

	policy := c.cfg.Retry
	policy.Retryable = errors.IsTransient

	resp, err := retry.DoWithResult(ctx, policy, func() (*docstore.SearchResponse, error) {
		return c.search(ctx, index, body)
	})
	if err != nil {
		c.logger.Debug("search failed", "index", index, "error", err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) search(ctx context.Context, index string, body []byte) (*docstore.SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err),
			"Client", "Search", "search "+index)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, classifyStatus(res, "Search")
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Search", "read response body")
	}
	return decodeSearchResponse(raw)
}

// Put implements docstore.Writer. The document is visible to searches when Put returns.
func (c *Client) Put(ctx context.Context, index, id string, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapInvalid(err, "Client", "Put", "encode document")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	res, err := c.es.Index(index, bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err), "Client", "Put", "index "+id)
	}
	defer res.Body.Close()
	if res.IsError() {
		return classifyStatus(res, "Put")
	}
	return nil
}

// EnsureIndex implements docstore.IndexCreator. An index that already exists
// is left untouched, mappings included.
func (c *Client) EnsureIndex(ctx context.Context, index string, mappings map[string]any) error {
	body, err := json.Marshal(map[string]any{"mappings": mappings})
	if err != nil {
		return errors.WrapInvalid(err, "Client", "EnsureIndex", "encode mappings")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	res, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err), "Client", "EnsureIndex", "create "+index)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			return nil
		}
		return errors.WrapInvalid(fmt.Errorf("%w: elasticsearch returned %s: %s", errors.ErrInvalidRequest, res.Status(), strings.TrimSpace(string(raw))),
			"Client", "EnsureIndex", "handle response")
	}
	if res.IsError() {
		return classifyStatus(res, "EnsureIndex")
	}
	c.logger.Debug("index created", "index", index)
	return nil
}

// classifyStatus turns an error response into a classified error. Throttling
// and server errors are transient; other client errors are invalid.
func classifyStatus(res *esapi.Response, method string) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	err := fmt.Errorf("elasticsearch returned %s: %s", res.Status(), strings.TrimSpace(string(msg)))

	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err), "Client", method, "handle response")
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err), "Client", method, "handle response")
	}
}
