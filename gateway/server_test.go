package gateway

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/bridge"
	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/health"
	"github.com/c360/metaquery/metadata"
	"github.com/c360/metaquery/metric"
	"github.com/c360/metaquery/schema"
	mqtestutil "github.com/c360/metaquery/testutil"
)

func echoBridge(seen *bridge.Params) *bridge.Bridge {
	return bridge.New(bridge.ExecutorFunc(func(_ context.Context, p bridge.Params) *bridge.Result {
		if seen != nil {
			*seen = p
		}
		return &bridge.Result{Data: map[string]any{"echo": p.Query}}
	}))
}

func newTestServer(t *testing.T, cfg Config, b *bridge.Bridge, opts ...Option) *httptest.Server {
	t.Helper()
	s, err := NewServer(cfg, b, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, bridge.Envelope) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env bridge.Envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp, env
}

func TestServer_Query(t *testing.T) {
	var seen bridge.Params
	ts := newTestServer(t, Config{}, echoBridge(&seen))

	resp, env := post(t, ts.URL+"/graphql", `{"query":"{ version }","variables":{"a":1},"operationName":"Op"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "{ version }", env.Data["echo"])
	assert.Empty(t, env.Errors)
	assert.Equal(t, "Op", seen.OperationName)
	assert.Equal(t, map[string]any{"a": float64(1)}, seen.Variables)
}

func TestServer_MalformedRequestsAre200(t *testing.T) {
	ts := newTestServer(t, Config{}, echoBridge(nil))

	for _, body := range []string{``, `not json`, `{"variables":{}}`, `{"query":1}`, `{"query":"{ a }","variables":[]}`} {
		resp, env := post(t, ts.URL+"/graphql", body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.False(t, env.HasData(), body)
		assert.Len(t, env.Errors, 1, body)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Config{}, echoBridge(nil))

	resp, err := http.Get(ts.URL + "/graphql")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestServer_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Config{MaxRequestSize: 64}, echoBridge(nil))

	body := `{"query":"` + strings.Repeat("x", 200) + `"}`
	resp, env := post(t, ts.URL+"/graphql", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, env.Errors, 1)
	assert.Contains(t, env.Errors[0].Message, "maximum size")
}

func TestServer_RequestIDPropagates(t *testing.T) {
	var got string
	b := bridge.New(bridge.ExecutorFunc(func(ctx context.Context, _ bridge.Params) *bridge.Result {
		got = bridge.RequestID(ctx)
		return &bridge.Result{Data: map[string]any{}}
	}))
	ts := newTestServer(t, Config{}, b)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/graphql", strings.NewReader(`{"query":"{ a }"}`))
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "abc-123", got)
}

func TestServer_QueryTimeout(t *testing.T) {
	var deadline time.Time
	b := bridge.New(bridge.ExecutorFunc(func(ctx context.Context, _ bridge.Params) *bridge.Result {
		deadline, _ = ctx.Deadline()
		return &bridge.Result{Data: map[string]any{}}
	}))
	ts := newTestServer(t, Config{TimeoutStr: "2s"}, b)

	before := time.Now()
	post(t, ts.URL+"/graphql", `{"query":"{ a }"}`)
	assert.WithinDuration(t, before.Add(2*time.Second), deadline, time.Second)
}

func TestServer_CORS(t *testing.T) {
	ts := newTestServer(t, Config{EnableCORS: true, CORSOrigins: []string{"https://ui.example.com"}}, echoBridge(nil))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/graphql", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ui.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ui.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_Compression(t *testing.T) {
	big := strings.Repeat("service ", 500)
	b := bridge.New(bridge.ExecutorFunc(func(context.Context, bridge.Params) *bridge.Result {
		return &bridge.Result{Data: map[string]any{"blob": big}}
	}))
	ts := newTestServer(t, Config{Compression: true}, b)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/graphql", strings.NewReader(`{"query":"{ blob }"}`))
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := (&http.Client{Transport: &http.Transport{DisableCompression: true}}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(raw, []byte(`"blob"`)))
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RateLimit: RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}}, echoBridge(nil))

	for i := 0; i < 2; i++ {
		resp, _ := post(t, ts.URL+"/graphql", `{"query":"{ a }"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, env := post(t, ts.URL+"/graphql", `{"query":"{ a }"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Len(t, env.Errors, 1)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode, "health is not rate limited")
}

func TestServer_Health(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	monitor := health.NewMonitor()
	monitor.Register("store", health.CheckFunc("store", func(context.Context) error {
		if !healthy.Load() {
			return errors.ErrStoreUnavailable
		}
		return nil
	}))
	ts := newTestServer(t, Config{}, echoBridge(nil), WithHealthMonitor(monitor))

	get := func() (int, health.Status) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		var status health.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		return resp.StatusCode, status
	}

	code, status := get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusHealthy, status.Status)
	require.Len(t, status.SubStatuses, 1)
	assert.Equal(t, "store", status.SubStatuses[0].Component)

	monitor.UpdateDegraded("store-breaker", "half-open")
	code, status = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusDegraded, status.Status)

	healthy.Store(false)
	code, status = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, health.StatusUnhealthy, status.Status)
}

func TestServer_RecordsMetrics(t *testing.T) {
	m := metric.NewMetricsRegistry().CoreMetrics()
	ts := newTestServer(t, Config{}, echoBridge(nil), WithMetrics(m))

	post(t, ts.URL+"/graphql", `{"query":"{ a }"}`)
	post(t, ts.URL+"/graphql", `{}`)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(bridge.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(bridge.OutcomeFailed)))
}

func TestServer_EndToEnd(t *testing.T) {
	mem, topo, err := mqtestutil.NewTopologyStore(context.Background())
	require.NoError(t, err)
	store, err := metadata.NewStore(mem, metadata.Config{})
	require.NoError(t, err)
	s, err := schema.New(store, "test")
	require.NoError(t, err)
	ts := newTestServer(t, Config{}, bridge.New(bridge.NewGraphQLExecutor(s)))

	body, err := json.Marshal(map[string]any{
		"query":     `query($id: ID!) { getInstance(instanceId: $id) { name language attributes { name value } } }`,
		"variables": map[string]any{"id": topo.CartPod1},
	})
	require.NoError(t, err)

	resp, env := post(t, ts.URL+"/graphql", string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, env.Errors)
	inst, ok := env.Data["getInstance"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cart-pod-1", inst["name"])
	assert.Equal(t, "JAVA", inst["language"])
	assert.Equal(t, []any{map[string]any{"name": "pid", "value": "123"}}, inst["attributes"])

	resp, env = post(t, ts.URL+"/graphql", `{"query":"{ listServices(layer: \"BOGUS\") { id } }"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, env.Errors, 1)
	assert.Contains(t, env.Errors[0].Message, "Invalid input")
}

func TestServer_StartStop(t *testing.T) {
	s, err := NewServer(Config{BindAddress: "127.0.0.1:0"}, echoBridge(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, ready) }()

	<-ready
	assert.True(t, s.IsRunning())
	resp, env := post(t, "http://"+s.Addr()+"/graphql", `{"query":"{ a }"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.HasData())

	err = s.Start(ctx, nil)
	assert.Error(t, err, "second start is rejected")

	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.IsRunning())
}

func TestServer_StartTLS(t *testing.T) {
	certSource := httptest.NewUnstartedServer(http.NotFoundHandler())
	certSource.StartTLS()
	defer certSource.Close()

	s, err := NewServer(Config{BindAddress: "127.0.0.1:0"}, echoBridge(nil),
		WithTLSConfig(&tls.Config{Certificates: certSource.TLS.Certificates, MinVersion: tls.VersionTLS12}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, ready) }()
	<-ready

	resp, err := certSource.Client().Post("https://"+s.Addr()+"/graphql", "application/json",
		strings.NewReader(`{"query":"{ a }"}`))
	require.NoError(t, err)
	var env bridge.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	assert.True(t, env.HasData())
	assert.NotNil(t, resp.TLS)

	plain, err := http.Post("http://"+s.Addr()+"/graphql", "application/json", strings.NewReader(`{"query":"{ a }"}`))
	if err == nil {
		plain.Body.Close()
		assert.Equal(t, http.StatusBadRequest, plain.StatusCode, "plain HTTP is refused")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{}, nil)
	require.Error(t, err)

	_, err = NewServer(Config{Path: "graphql"}, echoBridge(nil))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
