package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
)

// TestClient is a connected Client backed by a NATS container.
type TestClient struct {
	Client  *Client
	URL     string
	cleanup func()
}

// TestOption configures NewTestClient
type TestOption func(*testConfig)

type testConfig struct {
	image     string
	timeout   time.Duration
	kvBuckets []string
}

// WithImage sets the NATS image (default: nats:2.11-alpine)
func WithImage(image string) TestOption {
	return func(cfg *testConfig) {
		cfg.image = image
	}
}

// WithKVBuckets pre-creates KV buckets
func WithKVBuckets(buckets ...string) TestOption {
	return func(cfg *testConfig) {
		cfg.kvBuckets = append(cfg.kvBuckets, buckets...)
	}
}

// NewTestClient starts a JetStream-enabled NATS container and connects to it.
// The container is terminated by t.Cleanup.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := &testConfig{image: "nats:2.11-alpine", timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	container, err := natscontainer.Run(ctx, cfg.image)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}

	client, err := NewClient(url, WithTimeout(cfg.timeout), WithMaxReconnects(0))
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to create NATS client: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to connect to NATS: %v", err)
	}

	tc := &TestClient{
		Client: client,
		URL:    url,
		cleanup: func() {
			_ = client.Close(context.Background())
			_ = container.Terminate(context.Background())
		},
	}
	t.Cleanup(tc.Terminate)

	for _, bucket := range cfg.kvBuckets {
		if _, err := client.EnsureBucket(ctx, jetstream.KeyValueConfig{Bucket: bucket}); err != nil {
			t.Fatalf("Failed to create KV bucket %s: %v", bucket, err)
		}
	}
	return tc
}

// Terminate closes the client and the container. Usually handled by t.Cleanup.
func (tc *TestClient) Terminate() {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
}

// String implements fmt.Stringer
func (tc *TestClient) String() string {
	return fmt.Sprintf("nats test client (%s)", tc.URL)
}
