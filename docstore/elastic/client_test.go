package elastic

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/retry"
	"github.com/c360/metaquery/pkg/tlsutil"
)

const searchBody = `{
	"took": 1,
	"hits": {
		"total": {"value": 2, "relation": "eq"},
		"hits": [
			{"_index": "instance_traffic", "_id": "b", "_source": {"name": "pod-b", "last_ping": 202401011205, "properties": "{\"z\":\"1\",\"a\":\"2\"}"}},
			{"_index": "instance_traffic", "_id": "a", "_source": {"name": "pod-a", "layer": 2, "tags": ["x", true, null], "properties": {"zone": "b", "hostname": "h1", "pid": 7}}}
		]
	}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addresses = []string{url}
	cfg.Retry = retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestDecodeSearchResponse(t *testing.T) {
	resp, err := decodeSearchResponse([]byte(searchBody))
	require.NoError(t, err)

	assert.Equal(t, int64(2), resp.Total)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, "b", resp.Hits[0].ID)
	assert.Equal(t, "a", resp.Hits[1].ID)
	assert.Equal(t, "instance_traffic", resp.Hits[0].Index)
	assert.Equal(t, json.Number("202401011205"), resp.Hits[0].Source["last_ping"])
	assert.Equal(t, `{"z":"1","a":"2"}`, resp.Hits[0].Source["properties"])
	assert.Equal(t, []any{"x", true, nil}, resp.Hits[1].Source["tags"])
	assert.Equal(t, json.RawMessage(`{"zone":"b","hostname":"h1","pid":7}`), resp.Hits[1].Source["properties"])
}

func TestDecodeSearchResponse_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"took": 1}`, `{"hits":{"hits":[{"_id":"a","_source":[1]}]}}`} {
		_, err := decodeSearchResponse([]byte(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, errors.ErrMalformedResponse), raw)
		assert.True(t, errors.IsFatal(err), raw)
	}
}

func TestDecodeSearchResponse_MissingSource(t *testing.T) {
	resp, err := decodeSearchResponse([]byte(`{"hits":{"hits":[{"_id":"a"}]}}`))
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.NotNil(t, resp.Hits[0].Source)
}

func TestClient_Search(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, searchBody)
	})

	c := newTestClient(t, srv.URL)

	resp, err := c.Search(context.Background(), "instance_traffic", docstore.SearchRequest{
		Query: docstore.Bool(docstore.Term("service_id", "svcA")),
		Size:  5,
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)

	assert.Equal(t, "/instance_traffic/_search", gotPath)
	assert.Equal(t, float64(5), gotBody["size"])
	assert.Contains(t, gotBody, "query")
}

func TestClient_SearchRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"unavailable"}`)
			return
		}
		_, _ = io.WriteString(w, searchBody)
	})

	c := newTestClient(t, srv.URL)
	resp, err := c.Search(context.Background(), "idx", docstore.SearchRequest{Size: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SearchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"parsing_exception"}}`)
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "idx", docstore.SearchRequest{Size: 1})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "parsing_exception")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_SearchServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "idx", docstore.SearchRequest{Size: 1})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SearchValidatesRequest(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Search(context.Background(), "", docstore.SearchRequest{Size: 1})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestClient_SearchOverTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, searchBody)
	}))
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}), 0o644))

	cfg := DefaultConfig()
	cfg.Addresses = []string{srv.URL}
	cfg.TLS = tlsutil.ClientConfig{Enabled: true, CAFiles: []string{caFile}}
	c, err := New(cfg)
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), "instance_traffic", docstore.SearchRequest{Size: 5})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)

	cfg.TLS.CAFiles = []string{filepath.Join(t.TempDir(), "missing.pem")}
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestClient_EnsureIndex(t *testing.T) {
	var existing atomic.Bool
	var gotBody map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		switch r.URL.Path {
		case "/instance_traffic":
			if existing.Swap(true) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":{"type":"resource_already_exists_exception"},"status":400}`)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = io.WriteString(w, `{"acknowledged":true}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"type":"invalid_index_name_exception"},"status":400}`)
		}
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	mappings := map[string]any{"properties": map[string]any{"name": map[string]any{"type": "keyword"}}}

	require.NoError(t, c.EnsureIndex(ctx, "instance_traffic", mappings))
	assert.Equal(t, map[string]any{"mappings": mappings}, gotBody)
	require.NoError(t, c.EnsureIndex(ctx, "instance_traffic", mappings))

	err := c.EnsureIndex(ctx, "Bad", mappings)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Addresses)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)

	cfg = Config{TimeoutStr: "soon"}
	assert.Error(t, cfg.Validate())

	cfg = Config{APIKey: "k", Username: "u"}
	assert.Error(t, cfg.Validate())
}
