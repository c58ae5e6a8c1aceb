package bridge

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Params is what the bridge hands to the engine. Variables is nil unless the
// caller bound at least one variable.
type Params struct {
	Query         string
	Variables     map[string]any
	OperationName string
}

// Result is the engine outcome: possibly-nil data and engine-reported errors
// in engine order.
type Result struct {
	Data   any
	Errors []error
}

// Executor runs one query.
type Executor interface {
	Execute(ctx context.Context, params Params) *Result
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, params Params) *Result

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, params Params) *Result {
	return f(ctx, params)
}

// GraphQLExecutor runs queries against a graphql-go schema.
type GraphQLExecutor struct {
	schema graphql.Schema
}

// NewGraphQLExecutor returns an Executor for schema.
func NewGraphQLExecutor(schema graphql.Schema) *GraphQLExecutor {
	return &GraphQLExecutor{schema: schema}
}

// Execute implements Executor.
func (e *GraphQLExecutor) Execute(ctx context.Context, params Params) *Result {
	res := graphql.Do(graphql.Params{
		Schema:         e.schema,
		RequestString:  params.Query,
		VariableValues: params.Variables,
		OperationName:  params.OperationName,
		Context:        ctx,
	})
	if res == nil {
		return nil
	}

	out := &Result{Data: res.Data}
	if len(res.Errors) > 0 {
		out.Errors = make([]error, 0, len(res.Errors))
		for _, fe := range res.Errors {
			out.Errors = append(out.Errors, &gqlerror.Error{
				Message:    fe.Message,
				Extensions: fe.Extensions,
			})
		}
	}
	return out
}
