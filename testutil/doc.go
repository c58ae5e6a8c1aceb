// Package testutil provides fixtures and mocks for metaquery tests.
//
// Fixtures encode traffic records with the model codec and write them to any
// docstore.Writer, so the same data set can seed the in-memory store in unit
// tests and Elasticsearch or NATS KV in integration tests.
//
// MockClient is a docstore.Client that records every request and answers
// from a SearchFunc, for tests that assert on the exact query a lookup
// builds or need to inject store failures.
package testutil
