package natsclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"
)

type options struct {
	logger        *slog.Logger
	name          string
	timeout       time.Duration
	maxReconnects int
	reconnectWait time.Duration
	drainTimeout  time.Duration

	username string
	password string
	token    string
	tls      *tls.Config

	onChange func(connected bool)
}

func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		timeout:       5 * time.Second,
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		drainTimeout:  30 * time.Second,
	}
}

// ClientOption configures a Client.
type ClientOption func(*options) error

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *options) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithName sets the connection name shown in server monitoring.
func WithName(name string) ClientOption {
	return func(o *options) error {
		o.name = name
		return nil
	}
}

// WithTimeout bounds the initial dial.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("dial timeout must be positive, got %s", d)
		}
		o.timeout = d
		return nil
	}
}

// WithMaxReconnects caps reconnect attempts after a lost connection; -1
// retries forever, 0 gives up at the first loss.
func WithMaxReconnects(n int) ClientOption {
	return func(o *options) error {
		o.maxReconnects = n
		return nil
	}
}

// WithCredentials authenticates with a username and password.
func WithCredentials(username, password string) ClientOption {
	return func(o *options) error {
		if o.token != "" {
			return fmt.Errorf("credentials and token are mutually exclusive")
		}
		o.username, o.password = username, password
		return nil
	}
}

// WithToken authenticates with a bearer token.
func WithToken(token string) ClientOption {
	return func(o *options) error {
		if o.username != "" {
			return fmt.Errorf("credentials and token are mutually exclusive")
		}
		o.token = token
		return nil
	}
}

// WithTLSConfig secures the connection.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(o *options) error {
		o.tls = cfg
		return nil
	}
}

// OnConnectionChange registers fn to run, on its own goroutine, whenever the
// connection comes up or goes down.
func OnConnectionChange(fn func(connected bool)) ClientOption {
	return func(o *options) error {
		o.onChange = fn
		return nil
	}
}
