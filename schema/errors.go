package schema

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/metaquery/errors"
)

// fieldError carries a gqlerror through graphql-go, which only keeps
// extensions of errors that expose an Extensions method.
type fieldError struct {
	gql *gqlerror.Error
	err error
}

func (e *fieldError) Error() string              { return e.gql.Message }
func (e *fieldError) Extensions() map[string]any { return e.gql.Extensions }
func (e *fieldError) Unwrap() error              { return e.err }
func (e *fieldError) GQLError() *gqlerror.Error  { return e.gql }

func newFieldError(err error, message string, extensions map[string]any) error {
	return &fieldError{
		gql: &gqlerror.Error{Message: message, Extensions: extensions},
		err: err,
	}
}

// mapStoreError converts a metadata store failure into a field error with a
// code extension.
func mapStoreError(err error, operation string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newFieldError(err, "Query timeout exceeded", map[string]any{
			"code":      "DEADLINE_EXCEEDED",
			"operation": operation,
		})

	case errors.Is(err, context.Canceled):
		return newFieldError(err, "Query cancelled", map[string]any{
			"code":      "CANCELLED",
			"operation": operation,
		})

	case errors.Is(err, errors.ErrCircuitOpen):
		return newFieldError(err, "Storage temporarily unavailable - please retry", map[string]any{
			"code":      "SERVICE_UNAVAILABLE",
			"operation": operation,
			"retryable": true,
		})

	case errors.Is(err, errors.ErrMalformedDocument), errors.Is(err, errors.ErrMalformedResponse):
		return newFieldError(err, fmt.Sprintf("Invalid stored data: %s", err.Error()), map[string]any{
			"code":      "INVALID_RESPONSE",
			"operation": operation,
		})
	}

	if errors.IsInvalid(err) {
		return newFieldError(err, fmt.Sprintf("Invalid input: %s", err.Error()), map[string]any{
			"code":      "INVALID_INPUT",
			"operation": operation,
		})
	}

	if errors.IsFatal(err) {
		return newFieldError(err, fmt.Sprintf("Internal error: %s", err.Error()), map[string]any{
			"code":      "INTERNAL_ERROR",
			"operation": operation,
		})
	}

	if errors.IsTransient(err) {
		return newFieldError(err, fmt.Sprintf("Temporary error: %s", err.Error()), map[string]any{
			"code":      "TRANSIENT_ERROR",
			"operation": operation,
			"retryable": true,
		})
	}

	return newFieldError(err, fmt.Sprintf("Query failed: %s", err.Error()), map[string]any{
		"code":      "QUERY_ERROR",
		"operation": operation,
	})
}
