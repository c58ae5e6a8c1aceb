// Package gateway serves the query bridge over HTTP.
//
// A single endpoint (default POST /graphql) accepts
//
//	{"query": "...", "variables": {...}, "operationName": "..."}
//
// and always answers a query with status 200 and a {data?, errors?}
// envelope; malformed bodies become a single-error envelope. Non-POST
// requests get 405 and a throttled client gets 429, both with an
// error envelope body.
//
// Middleware, outermost first: request id (X-Request-ID, generated with
// google/uuid when absent), CORS, gzip compression (klauspost gzhttp) and,
// on the query path only, a per-client token bucket (golang.org/x/time/rate).
//
// /health probes the dependencies registered on a health.Monitor and answers
// 200 (healthy or degraded) or 503 (unhealthy) with the aggregate status.
package gateway
