// Package retry wraps document store calls in exponential backoff.
//
// Only the store clients use it, and only for errors the caller marks
// retryable (normally errors.IsTransient). The final error is returned
// as-is so the metadata layer can still propagate it unchanged:
//
//	resp, err := retry.DoWithResult(ctx, cfg, func() (*docstore.SearchResponse, error) {
//	    return c.search(ctx, index, req)
//	})
//
// A zero MaxAttempts behaves like Once(): one call, no backoff.
package retry
