package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/c360/metaquery/errors"
)

// BreakerConfig configures the circuit breaker in front of a store.
type BreakerConfig struct {
	Enabled          bool          `json:"enabled"           yaml:"enabled"`
	MaxRequests      uint32        `json:"max_requests"      yaml:"max_requests"`
	Interval         time.Duration `json:"interval"          yaml:"interval"`
	Timeout          time.Duration `json:"timeout"           yaml:"timeout"`
	FailureThreshold uint32        `json:"failure_threshold" yaml:"failure_threshold"`
}

// DefaultBreakerConfig returns the breaker settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Validate fills zero values with defaults.
func (c *BreakerConfig) Validate() error {
	defaults := DefaultBreakerConfig()
	if c.MaxRequests == 0 {
		c.MaxRequests = defaults.MaxRequests
	}
	if c.Interval < 0 || c.Timeout < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative breaker duration", errors.ErrInvalidConfig),
			"BreakerConfig", "Validate", "check durations")
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	return nil
}

// StateObserver is notified when the breaker changes state.
type StateObserver func(name string, from, to gobreaker.State)

// Guard wraps a Client with a circuit breaker. Only transient failures count
// against the breaker; invalid requests and callers that cancel pass through
// without tripping it.
type Guard struct {
	next   Client
	cb     *gobreaker.CircuitBreaker[*SearchResponse]
	logger *slog.Logger
}

// NewGuard creates a breaker-protected client.
func NewGuard(name string, next Client, cfg BreakerConfig, logger *slog.Logger, observers ...StateObserver) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{
		next:   next,
		logger: logger.With("component", "docstore-guard", "breaker", name),
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsInvalid(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			for _, observe := range observers {
				observe(name, from, to)
			}
		},
	}
	g.cb = gobreaker.NewCircuitBreaker[*SearchResponse](settings)
	return g
}

// State returns the current breaker state.
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}

// Search implements Client.
func (g *Guard) Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error) {
	resp, err := g.cb.Execute(func() (*SearchResponse, error) {
		return g.next.Search(ctx, index, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrCircuitOpen, err),
			"Guard", "Search", "search "+index)
	}
	return resp, err
}
