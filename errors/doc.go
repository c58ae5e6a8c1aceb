// Package errors classifies failures raised inside metaquery.
//
// Three classes drive handling at the edges of the system:
//
//	ErrorTransient  store timeouts, connection loss, open circuit breaker
//	ErrorInvalid    malformed requests, unknown layers, bad durations
//	ErrorFatal      broken configuration, missing buckets
//
// Lower layers (docstore, metadata) wrap and return; they never recover.
// The request bridge is the single boundary that folds every class into a
// response envelope.
//
// # Wrapping
//
// All wrappers produce "component.method: action failed: cause":
//
//	return errors.WrapTransient(err, "ElasticClient", "Search", "search request")
//
// Sentinels stay reachable through errors.Is after wrapping:
//
//	if errors.Is(err, errors.ErrUnknownLayer) { ... }
package errors
