// Package metaquery is a read-only query gateway over topology metadata
// (services, service instances and endpoints) persisted in a document store.
//
// # Architecture
//
// A request flows through four layers:
//
//	HTTP gateway (gateway)        POST {query, variables, operationName}
//	  -> request bridge (bridge)  parse, depth check, execute, shape envelope
//	  -> resolvers (schema)       fixed field -> resolver table
//	  -> metadata store (metadata)
//	  -> document store (docstore, docstore/elastic, docstore/kvstore)
//
// The bridge never returns a Go error: every failure, including a panic in a
// resolver, is folded into the {"data", "errors"} envelope. Resolver errors
// are aggregated per field so a partial result still carries its data.
//
// # Storage backends
//
//   - elasticsearch: production backend, structured bool/term/range/match queries
//   - nats-kv: JetStream key-value buckets scanned with the same query model
//   - memory: in-process store, used by tests and local runs
//
// Identifiers, time buckets and the persisted record layout live in model.
// The metadata store builds queries from these and decodes hits with the
// entity codec in model.
//
// # Running
//
//	metaquery --config configs/metaquery.yaml --log-level info
//
// See cmd/metaquery for flags and config for the file format and
// METAQUERY_* environment overrides.
package metaquery
