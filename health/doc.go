// Package health tracks the health of the gateway's dependencies.
//
// A Monitor holds the last known Status of each dependency. Dependencies
// are either probed on demand (Register + Check), which is how the
// document store ping works, or push their own status (Update), which is
// how NATS connection changes and circuit breaker transitions are reported:
//
//	monitor := health.NewMonitor()
//	monitor.Register("elasticsearch", health.CheckFunc("elasticsearch", es.Ping))
//
//	// from a breaker state observer
//	monitor.Update("store-breaker", health.FromBreakerState(name, to))
//
//	status := monitor.Check(ctx, "metaquery")
//	if status.IsUnhealthy() {
//	    // report 503
//	}
//
// Aggregation: any unhealthy dependency makes the system unhealthy; otherwise
// any degraded dependency makes it degraded. A half-open breaker is degraded.
//
// Error messages placed in a Status by FromError are sanitized: URLs, paths,
// IP addresses, ports and credentials are replaced with placeholders.
package health
