// Package schema builds the GraphQL query schema for topology metadata.
//
// The schema is a fixed table of query fields, each resolved by one call into
// a Querier (normally *metadata.Store):
//
//	listServices(layer, group)          services merged by id, layers unioned
//	getService(serviceId)               the merged service or null
//	getServices(serviceId)              one row per layer, unmerged
//	listInstances(duration, serviceId)  instances seen since the duration start
//	getInstance(instanceId)             the instance or null
//	findEndpoint(keyword, serviceId, limit)
//	version
//
// Store failures become field errors whose message is prefixed by their
// class and whose "code" extension names it, so a query touching several
// fields still returns the fields that succeeded.
package schema
