// Package metric provides Prometheus metrics for the query gateway and the
// HTTP server that exposes them.
//
// NewMetricsRegistry registers the gateway metrics (Metrics) together with
// the Go runtime and process collectors. Components that need extra
// collectors register them through MetricsRegistrar.
//
//	registry := metric.NewMetricsRegistry()
//	m := registry.CoreMetrics()
//
//	store, _ := metadata.NewStore(client, cfg, metadata.WithQueryObserver(m.RecordStoreQuery))
//	m.RecordRequest(env.Outcome(), time.Since(start))
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go server.Start()
//	defer server.Stop(ctx)
//
// Exposed series:
//
//   - metaquery_requests_total{outcome} and metaquery_requests_duration_seconds{outcome}
//   - metaquery_store_queries_total{index,outcome}
//   - metaquery_store_query_duration_seconds{index}
//   - metaquery_store_circuit_breaker{breaker}
//   - metaquery_store_connected
package metric
