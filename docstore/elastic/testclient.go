package elastic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	escontainer "github.com/testcontainers/testcontainers-go/modules/elasticsearch"

	"github.com/c360/metaquery/pkg/tlsutil"
)

// TestClient is a Client backed by an Elasticsearch container.
type TestClient struct {
	Client  *Client
	Address string
	cleanup func()
}

// TestOption configures NewTestClient
type TestOption func(*testConfig)

type testConfig struct {
	image    string
	password string
}

// WithImage sets the Elasticsearch image
// (default: docker.elastic.co/elasticsearch/elasticsearch:8.15.3)
func WithImage(image string) TestOption {
	return func(cfg *testConfig) {
		cfg.image = image
	}
}

// NewTestClient starts a single-node Elasticsearch container and returns a
// client for it. Security is left on: the client authenticates as the
// elastic user and trusts the container CA. The container is terminated by
// t.Cleanup.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := &testConfig{
		image:    "docker.elastic.co/elasticsearch/elasticsearch:8.15.3",
		password: "metaquery-test",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	container, err := escontainer.Run(ctx, cfg.image, escontainer.WithPassword(cfg.password))
	if err != nil {
		t.Fatalf("Failed to start Elasticsearch container: %v", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	clientCfg := DefaultConfig()
	clientCfg.Addresses = []string{container.Settings.Address}
	clientCfg.Username = "elastic"
	clientCfg.Password = container.Settings.Password
	clientCfg.TimeoutStr = "30s"
	if len(container.Settings.CACert) > 0 {
		caFile := filepath.Join(t.TempDir(), "es-ca.pem")
		if err := os.WriteFile(caFile, container.Settings.CACert, 0o600); err != nil {
			terminate()
			t.Fatalf("Failed to write Elasticsearch CA: %v", err)
		}
		clientCfg.TLS = tlsutil.ClientConfig{Enabled: true, CAFiles: []string{caFile}}
	}

	client, err := New(clientCfg)
	if err != nil {
		terminate()
		t.Fatalf("Failed to create Elasticsearch client: %v", err)
	}
	if err := client.Ping(ctx); err != nil {
		terminate()
		t.Fatalf("Failed to ping Elasticsearch: %v", err)
	}

	tc := &TestClient{
		Client:  client,
		Address: container.Settings.Address,
		cleanup: terminate,
	}
	t.Cleanup(tc.Terminate)
	return tc
}

// Terminate stops the container. Usually handled by t.Cleanup.
func (tc *TestClient) Terminate() {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
}

// String implements fmt.Stringer
func (tc *TestClient) String() string {
	return fmt.Sprintf("elasticsearch test client (%s)", tc.Address)
}
