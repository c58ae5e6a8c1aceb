// Package model holds the traffic records persisted by the metadata indices
// and the API objects derived from them.
//
// Records are decoded from stored documents with the *FromStorage builders and
// encoded back with ToStorage. Decoding is the only step that can fail: the
// To* mappings from a record to an API object are total, so a decoded record
// always yields a fully populated Service, ServiceInstance or Endpoint.
//
// Instance property bags are kept as ordered Properties. The "language" entry
// is promoted to ServiceInstance.Language and the remaining entries become
// Attributes in the order they were stored.
package model
