// Package config loads the gateway configuration.
//
// A Loader starts from Default(), merges each file layer in order (JSON or
// YAML, chosen by extension), then applies METAQUERY_* environment
// overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.json") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Layers are merged key by key, so a layer only needs the keys it changes.
// Unknown keys are rejected. Durations are written as strings ("30s").
// With validation enabled the result is first checked against the embedded
// JSON Schema (schema.json), then by each section's Validate.
//
// Environment overrides:
//
//	METAQUERY_GATEWAY_BIND_ADDRESS   gateway.bind_address
//	METAQUERY_GATEWAY_PATH           gateway.path
//	METAQUERY_GATEWAY_TIMEOUT        gateway.timeout
//	METAQUERY_STORAGE_BACKEND        storage.backend
//	METAQUERY_STORAGE_NAMESPACE      storage.namespace
//	METAQUERY_STORAGE_QUERY_MAX_SIZE storage.query_max_size
//	METAQUERY_ES_ADDRESSES           storage.elasticsearch.addresses (comma separated)
//	METAQUERY_ES_USERNAME            storage.elasticsearch.username
//	METAQUERY_ES_PASSWORD            storage.elasticsearch.password
//	METAQUERY_ES_API_KEY             storage.elasticsearch.api_key
//	METAQUERY_NATS_URL               storage.nats.url
//	METAQUERY_NATS_USERNAME          storage.nats.username
//	METAQUERY_NATS_PASSWORD          storage.nats.password
//	METAQUERY_NATS_TOKEN             storage.nats.token
//	METAQUERY_METRICS_PORT           metrics.port
package config
