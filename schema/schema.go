package schema

import (
	"context"

	"github.com/graphql-go/graphql"

	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/model"
)

// Querier is the metadata lookup surface the resolvers call.
type Querier interface {
	ListServices(ctx context.Context, layer, group string) ([]model.Service, error)
	GetServices(ctx context.Context, serviceID string) ([]model.Service, error)
	ListInstances(ctx context.Context, startTS, endTS int64, serviceID string) ([]model.ServiceInstance, error)
	GetInstance(ctx context.Context, instanceID string) (*model.ServiceInstance, error)
	FindEndpoint(ctx context.Context, keyword, serviceID string, limit int) ([]model.Endpoint, error)
}

// Query field names.
const (
	QueryListServices  = "listServices"
	QueryGetService    = "getService"
	QueryGetServices   = "getServices"
	QueryListInstances = "listInstances"
	QueryGetInstance   = "getInstance"
	QueryFindEndpoint  = "findEndpoint"
	QueryVersion       = "version"
)

// New builds the query schema over q. The field table is fixed once built.
func New(q Querier, version string) (graphql.Schema, error) {
	if q == nil {
		return graphql.Schema{}, errors.WrapInvalid(errors.ErrMissingConfig, "Schema", "New", "require querier")
	}
	r := &resolver{q: q, version: version}
	t := newTypes()

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery(r, t),
	})
	if err != nil {
		return graphql.Schema{}, errors.WrapFatal(err, "Schema", "New", "build schema")
	}
	return schema, nil
}

func rootQuery(r *resolver, t *types) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			QueryListServices: &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(t.service))),
				Args: graphql.FieldConfigArgument{
					ArgLayer: &graphql.ArgumentConfig{Type: graphql.String},
					ArgGroup: &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: r.listServices,
			},
			QueryGetService: &graphql.Field{
				Type: t.service,
				Args: graphql.FieldConfigArgument{
					ArgServiceID: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.getService,
			},
			QueryGetServices: &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(t.service))),
				Args: graphql.FieldConfigArgument{
					ArgServiceID: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.getServices,
			},
			QueryListInstances: &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(t.instance))),
				Args: graphql.FieldConfigArgument{
					ArgDuration:  &graphql.ArgumentConfig{Type: graphql.NewNonNull(t.duration)},
					ArgServiceID: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.listInstances,
			},
			QueryGetInstance: &graphql.Field{
				Type: t.instance,
				Args: graphql.FieldConfigArgument{
					ArgInstanceID: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.getInstance,
			},
			QueryFindEndpoint: &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(t.endpoint))),
				Args: graphql.FieldConfigArgument{
					ArgKeyword:   &graphql.ArgumentConfig{Type: graphql.String},
					ArgServiceID: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					ArgLimit:     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: r.findEndpoint,
			},
			QueryVersion: &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(graphql.ResolveParams) (any, error) {
					return r.version, nil
				},
			},
		},
	})
}
