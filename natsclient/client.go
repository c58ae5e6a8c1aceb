// Package natsclient holds the NATS connection behind the JetStream
// key-value document store and the bucket handles opened on it.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/metaquery/errors"
)

// State is the connection state as last reported by the NATS library.
type State int32

// Connection states
const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

var stateNames = [...]string{"disconnected", "connecting", "connected", "reconnecting"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Client is the KV store's single NATS connection. It reconnects on its own
// after the first successful Connect and reports every change through the
// connection callback.
type Client struct {
	url    string
	opts   options
	logger *slog.Logger
	state  atomic.Int32

	mu     sync.Mutex
	conn   *nats.Conn
	js     jetstream.JetStream
	gone   chan struct{}
	closed bool
}

// NewClient prepares a client for url. No connection is made until Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "require url")
	}
	c := &Client{url: url, opts: defaultOptions()}
	for _, opt := range opts {
		if err := opt(&c.opts); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.opts.logger.With("component", "natsclient", "url", url)
	return c, nil
}

// State reports the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether KV requests can currently reach the server.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Connect dials the server and binds JetStream. The dial timeout is the
// configured one, shortened to ctx's deadline when that comes first.
// Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.WrapFatal(errors.ErrNoConnection, "Client", "Connect", "client already closed")
	}
	if c.conn != nil {
		return nil
	}

	timeout := c.opts.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := ctx.Err(); err != nil || timeout <= 0 {
		if err == nil {
			err = context.DeadlineExceeded
		}
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionTimeout, err),
			"Client", "Connect", "dial")
	}

	c.setState(Connecting)
	c.logger.Info("Connecting to KV backend", "timeout", timeout)

	gone := make(chan struct{})
	conn, err := nats.Connect(c.url, c.natsOptions(timeout, gone)...)
	if err != nil {
		c.setState(Disconnected)
		return errors.WrapTransient(err, "Client", "Connect", "dial")
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.setState(Disconnected)
		return errors.WrapTransient(err, "Client", "Connect", "bind JetStream")
	}

	c.conn, c.js, c.gone = conn, js, gone
	c.setState(Connected)
	c.logger.Info("Connected to KV backend", "server", conn.ConnectedServerName())
	c.notify(true)
	return nil
}

func (c *Client) natsOptions(timeout time.Duration, gone chan struct{}) []nats.Option {
	var once sync.Once
	o := []nats.Option{
		nats.Timeout(timeout),
		nats.MaxReconnects(c.opts.maxReconnects),
		nats.ReconnectWait(c.opts.reconnectWait),
		nats.DrainTimeout(c.opts.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setState(Reconnecting)
			c.logger.Warn("KV backend connection lost", "error", err)
			c.notify(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.setState(Connected)
			c.logger.Info("KV backend connection restored", "server", nc.ConnectedServerName())
			c.notify(true)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.setState(Disconnected)
			c.notify(false)
			once.Do(func() { close(gone) })
		}),
	}
	if c.opts.name != "" {
		o = append(o, nats.Name(c.opts.name))
	}
	if c.opts.username != "" {
		o = append(o, nats.UserInfo(c.opts.username, c.opts.password))
	}
	if c.opts.token != "" {
		o = append(o, nats.Token(c.opts.token))
	}
	if c.opts.tls != nil {
		o = append(o, nats.Secure(c.opts.tls))
	}
	return o
}

func (c *Client) notify(connected bool) {
	if fn := c.opts.onChange; fn != nil {
		go fn(connected)
	}
}

// Close drains the connection so in-flight KV requests finish, then waits
// until the library reports it closed or ctx ends, whichever is first.
// Credentials are dropped so the client cannot be reconnected. Closing twice
// is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, gone := c.conn, c.gone
	c.conn, c.js = nil, nil
	c.opts.password, c.opts.token = "", ""
	c.mu.Unlock()

	if conn == nil {
		c.setState(Disconnected)
		return nil
	}

	if err := conn.Drain(); err != nil {
		conn.Close()
		if errors.Is(err, nats.ErrConnectionClosed) {
			return nil
		}
		return errors.WrapTransient(err, "Client", "Close", "drain")
	}
	select {
	case <-gone:
		c.logger.Info("KV backend connection closed")
		return nil
	case <-ctx.Done():
		conn.Close()
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "wait for drain")
	}
}

func (c *Client) jetStream(method string) (jetstream.JetStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", method, "bind JetStream")
	}
	return c.js, nil
}

// OpenBucket binds an existing bucket. A missing bucket is reported as a
// fatal ErrBucketNotFound so callers can tell an empty index from an outage.
func (c *Client) OpenBucket(ctx context.Context, name string) (*KVStore, error) {
	js, err := c.jetStream("OpenBucket")
	if err != nil {
		return nil, err
	}
	kv, err := js.KeyValue(ctx, name)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrBucketNotFound, name),
			"Client", "OpenBucket", "look up bucket")
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "OpenBucket", "look up bucket "+name)
	}
	return c.newKVStore(kv), nil
}

// EnsureBucket binds the bucket cfg names, creating it when missing. Losing
// a creation race to another writer binds the winner's bucket.
func (c *Client) EnsureBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (*KVStore, error) {
	js, err := c.jetStream("EnsureBucket")
	if err != nil {
		return nil, err
	}
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return c.newKVStore(kv), nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, errors.WrapTransient(err, "Client", "EnsureBucket", "look up bucket "+cfg.Bucket)
	}

	kv, err = js.CreateKeyValue(ctx, cfg)
	switch {
	case err == nil:
		c.logger.Info("Created KV bucket", "bucket", cfg.Bucket, "replicas", cfg.Replicas)
	case errors.Is(err, jetstream.ErrBucketExists), errors.Is(err, jetstream.ErrStreamNameAlreadyInUse):
		if kv, err = js.KeyValue(ctx, cfg.Bucket); err != nil {
			return nil, errors.WrapTransient(err, "Client", "EnsureBucket", "bind raced bucket "+cfg.Bucket)
		}
	default:
		return nil, errors.WrapTransient(err, "Client", "EnsureBucket", "create bucket "+cfg.Bucket)
	}
	return c.newKVStore(kv), nil
}
