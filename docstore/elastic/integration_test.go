//go:build integration

package elastic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/model"
	"github.com/c360/metaquery/testutil"
)

func TestClient_Integration(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()
	resolver := docstore.NamespaceResolver{Namespace: "it"}

	topo := testutil.NewTopology()
	require.NoError(t, topo.Load(ctx, tc.Client, resolver))
	// a second load finds the indices in place
	require.NoError(t, topo.Load(ctx, tc.Client, resolver))

	instances := resolver.PhysicalIndex(model.InstanceTrafficIndex)
	resp, err := tc.Client.Search(ctx, instances, docstore.SearchRequest{
		Query: docstore.Bool(
			docstore.Range(model.FieldLastPing).Gte(testutil.FixtureStartBucket),
			docstore.Term(model.FieldServiceID, topo.CartID),
		),
		Size: 10,
	})
	require.NoError(t, err)
	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		ids = append(ids, hit.ID)
	}
	assert.ElementsMatch(t, []string{topo.CartPod2, topo.CartPod3}, ids)

	resp, err = tc.Client.Search(ctx, instances, docstore.SearchRequest{
		Query: docstore.Bool(docstore.Term(model.FieldID, topo.CartPod3)),
		Size:  1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	record, err := model.InstanceTrafficFromStorage(resp.Hits[0].Source)
	require.NoError(t, err)
	assert.Equal(t, testutil.Props("hostname", "node-3", "language", "go"), record.Properties)

	endpoints := resolver.PhysicalIndex(model.EndpointTrafficIndex)
	resp, err = tc.Client.Search(ctx, endpoints, docstore.SearchRequest{
		Query: docstore.Bool(
			docstore.Term(model.FieldServiceID, topo.CartID),
			docstore.Match(model.MatchField(model.FieldName), "orders"),
		),
		Size: 10,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)

	resp, err = tc.Client.Search(ctx, "it_never_written", docstore.SearchRequest{Size: 10})
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)
}
