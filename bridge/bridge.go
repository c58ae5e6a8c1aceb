package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/metaquery/errors"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMaxDepth rejects queries nested deeper than depth before they reach
// the engine. Zero disables the limit.
func WithMaxDepth(depth int) Option {
	return func(b *Bridge) {
		b.maxDepth = depth
	}
}

// Bridge turns a query and its variables into an Envelope. It is safe for
// concurrent use; all state is per call.
type Bridge struct {
	executor Executor
	logger   *slog.Logger
	maxDepth int
}

// New creates a Bridge over executor.
func New(executor Executor, opts ...Option) *Bridge {
	b := &Bridge{
		executor: executor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge")
	return b
}

// Execute runs query with variables. It never fails: every outcome,
// including a panic inside the engine, is rendered into the envelope.
func (b *Bridge) Execute(ctx context.Context, query string, variables map[string]any) Envelope {
	return b.ExecuteRequest(ctx, Request{Query: query, Variables: variables})
}

// ExecuteRequest is Execute for a decoded Request.
func (b *Bridge) ExecuteRequest(ctx context.Context, req Request) (env Envelope) {
	logger := b.logger
	if id := RequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("query execution failed: %v", r)
			logger.Error("Query execution panicked", "error", err, "query", req.Query)
			env = ErrorEnvelope(err.Error())
		}
	}()

	if strings.TrimSpace(req.Query) == "" {
		return b.fail(logger, req, errors.WrapInvalid(errors.ErrMissingQuery, "Bridge", "Execute", "validate request"),
			errors.ErrMissingQuery.Error())
	}
	if err := CheckDepth(req.Query, b.maxDepth); err != nil {
		return b.fail(logger, req, err, err.Error())
	}
	if b.executor == nil {
		return b.fail(logger, req, errors.WrapFatal(errors.ErrMissingConfig, "Bridge", "Execute", "resolve executor"),
			"query engine is not configured")
	}

	params := Params{Query: req.Query, OperationName: req.OperationName}
	if len(req.Variables) > 0 {
		params.Variables = req.Variables
	}

	result := b.executor.Execute(ctx, params)
	if result == nil {
		return b.fail(logger, req, errors.WrapFatal(errors.New("nil result"), "Bridge", "Execute", "execute query"),
			"query engine returned no result")
	}

	var agg ErrorAggregator
	for _, err := range result.Errors {
		agg.AddError(err)
	}
	out, err := agg.Envelope(result.Data)
	if err != nil {
		return b.fail(logger, req, errors.WrapFatal(err, "Bridge", "Execute", "render result"), err.Error())
	}

	logger.Debug("Query executed", "outcome", out.Outcome(), "errors", agg.Len(), "operation", req.OperationName)
	return out
}

func (b *Bridge) fail(logger *slog.Logger, req Request, err error, message string) Envelope {
	logger.Error("Query execution failed", "error", err, "query", req.Query)
	return ErrorEnvelope(message)
}
