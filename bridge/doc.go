// Package bridge accepts a query with bound variables, hands it to a query
// engine and folds whatever comes back into one response envelope.
//
// The envelope carries "data" when the engine produced any and "errors" when
// at least one error was reported; a partially successful query carries both.
// Failures that happen before or around execution (an empty or too deep
// query, a missing engine result, a panic) produce a single error and no data.
//
// Basic usage:
//
//	exec := bridge.NewGraphQLExecutor(schema)
//	b := bridge.New(exec, bridge.WithLogger(logger), bridge.WithMaxDepth(10))
//
//	env := b.Execute(ctx, `{ listServices { id name } }`, nil)
//	body, _ := json.Marshal(env)
//
// HTTP handlers decode the body with ParseRequest and call ExecuteRequest so
// operationName is forwarded as well.
package bridge
