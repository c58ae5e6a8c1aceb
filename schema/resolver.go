package schema

import (
	"github.com/graphql-go/graphql"

	"github.com/c360/metaquery/model"
)

type resolver struct {
	q       Querier
	version string
}

func stringArg(p graphql.ResolveParams, name string) string {
	s, _ := p.Args[name].(string)
	return s
}

func (r *resolver) listServices(p graphql.ResolveParams) (any, error) {
	rows, err := r.q.ListServices(p.Context, stringArg(p, ArgLayer), stringArg(p, ArgGroup))
	if err != nil {
		return nil, mapStoreError(err, QueryListServices)
	}
	return model.MergeServices(rows), nil
}

func (r *resolver) getService(p graphql.ResolveParams) (any, error) {
	rows, err := r.q.GetServices(p.Context, stringArg(p, ArgServiceID))
	if err != nil {
		return nil, mapStoreError(err, QueryGetService)
	}
	merged := model.MergeServices(rows)
	if len(merged) == 0 {
		return nil, nil
	}
	return merged[0], nil
}

func (r *resolver) getServices(p graphql.ResolveParams) (any, error) {
	rows, err := r.q.GetServices(p.Context, stringArg(p, ArgServiceID))
	if err != nil {
		return nil, mapStoreError(err, QueryGetServices)
	}
	return rows, nil
}

func (r *resolver) listInstances(p graphql.ResolveParams) (any, error) {
	start, end, err := durationArg(p.Args[ArgDuration]).Millis()
	if err != nil {
		return nil, mapStoreError(err, QueryListInstances)
	}
	instances, err := r.q.ListInstances(p.Context, start, end, stringArg(p, ArgServiceID))
	if err != nil {
		return nil, mapStoreError(err, QueryListInstances)
	}
	return instances, nil
}

func (r *resolver) getInstance(p graphql.ResolveParams) (any, error) {
	instance, err := r.q.GetInstance(p.Context, stringArg(p, ArgInstanceID))
	if err != nil {
		return nil, mapStoreError(err, QueryGetInstance)
	}
	if instance == nil {
		return nil, nil
	}
	return instance, nil
}

func (r *resolver) findEndpoint(p graphql.ResolveParams) (any, error) {
	limit, _ := p.Args[ArgLimit].(int)
	endpoints, err := r.q.FindEndpoint(p.Context, stringArg(p, ArgKeyword), stringArg(p, ArgServiceID), limit)
	if err != nil {
		return nil, mapStoreError(err, QueryFindEndpoint)
	}
	return endpoints, nil
}
