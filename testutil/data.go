package testutil

import (
	"context"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/model"
)

// Reference times shared by the fixtures. Instance last-ping buckets are
// placed around FixtureStartMillis.
const (
	// 2024-01-01 12:00:00 UTC
	FixtureStartMillis int64 = 1704110400000
	// 2024-01-01 13:00:00 UTC
	FixtureEndMillis int64 = 1704114000000
	// minute bucket of FixtureStartMillis
	FixtureStartBucket int64 = 202401011200
	// the minute before FixtureStartBucket
	FixtureBeforeBucket int64 = 202401011159
)

// Fixture is a set of traffic records to load into a store.
type Fixture struct {
	Services  []model.ServiceTraffic
	Instances []model.InstanceTraffic
	Endpoints []model.EndpointTraffic
}

// Service adds a normal service row and returns its id.
func (f *Fixture) Service(name string, layer model.Layer) string {
	group, short := model.SplitServiceName(name)
	id := model.BuildServiceID(name, true)
	f.Services = append(f.Services, model.ServiceTraffic{
		ServiceID:  id,
		Name:       name,
		ShortName:  short,
		Group:      group,
		Layer:      layer,
		TimeBucket: FixtureStartBucket,
	})
	return id
}

// Instance adds an instance row and returns its id. A nil props leaves the
// property bag absent.
func (f *Fixture) Instance(serviceID, name string, lastPing int64, props model.Properties) string {
	record := model.InstanceTraffic{
		ServiceID:  serviceID,
		Name:       name,
		LastPing:   lastPing,
		Properties: props,
		Layer:      model.LayerGeneral,
		TimeBucket: lastPing,
	}
	f.Instances = append(f.Instances, record)
	return record.StorageID()
}

// Endpoint adds an endpoint row and returns its id.
func (f *Fixture) Endpoint(serviceID, name string) string {
	record := model.EndpointTraffic{ServiceID: serviceID, Name: name, TimeBucket: FixtureStartBucket}
	f.Endpoints = append(f.Endpoints, record)
	return record.StorageID()
}

// Load writes every record to w under the physical names given by resolver.
// Writers that declare mappings get their indices created first.
func (f *Fixture) Load(ctx context.Context, w docstore.Writer, resolver docstore.IndexResolver) error {
	if resolver == nil {
		resolver = docstore.NamespaceResolver{}
	}
	if creator, ok := w.(docstore.IndexCreator); ok {
		for _, index := range model.Indices() {
			if err := creator.EnsureIndex(ctx, resolver.PhysicalIndex(index), model.Mappings(index)); err != nil {
				return err
			}
		}
	}
	for _, r := range f.Services {
		if err := w.Put(ctx, resolver.PhysicalIndex(model.ServiceTrafficIndex), r.StorageID(), r.ToStorage()); err != nil {
			return err
		}
	}
	for _, r := range f.Instances {
		if err := w.Put(ctx, resolver.PhysicalIndex(model.InstanceTrafficIndex), r.StorageID(), r.ToStorage()); err != nil {
			return err
		}
	}
	for _, r := range f.Endpoints {
		if err := w.Put(ctx, resolver.PhysicalIndex(model.EndpointTrafficIndex), r.StorageID(), r.ToStorage()); err != nil {
			return err
		}
	}
	return nil
}

// Props builds an ordered property bag from alternating string keys and values.
func Props(kv ...string) model.Properties {
	props := model.Properties{}
	for i := 0; i+1 < len(kv); i += 2 {
		props = append(props, model.Property{Key: kv[i], Value: model.StringValue(kv[i+1])})
	}
	return props
}

// Topology is the shared data set used across package tests.
type Topology struct {
	Fixture

	CartID     string
	PaymentID  string
	DatabaseID string

	CartPod1 string
	CartPod2 string
	CartPod3 string
}

// NewTopology builds a small shop topology:
//   - shop::cart in GENERAL and K8S, shop::payment in GENERAL, mysql in DATABASE
//   - three cart instances last seen one minute before, at, and after the start bucket
//   - cart endpoints for orders and users
func NewTopology() *Topology {
	t := &Topology{}
	t.CartID = t.Service("shop::cart", model.LayerGeneral)
	t.Service("shop::cart", model.LayerK8s)
	t.PaymentID = t.Service("shop::payment", model.LayerGeneral)
	t.DatabaseID = t.Service("mysql", model.LayerDatabase)

	t.CartPod1 = t.Instance(t.CartID, "cart-pod-1", FixtureBeforeBucket, Props("language", "JAVA", "pid", "123"))
	t.CartPod2 = t.Instance(t.CartID, "cart-pod-2", FixtureStartBucket, nil)
	t.CartPod3 = t.Instance(t.CartID, "cart-pod-3", FixtureStartBucket+5, Props("hostname", "node-3", "language", "go"))
	t.Instance(t.PaymentID, "payment-pod-1", FixtureStartBucket+1, nil)

	t.Endpoint(t.CartID, "GET:/orders")
	t.Endpoint(t.CartID, "POST:/orders/{id}")
	t.Endpoint(t.CartID, "GET:/users")
	t.Endpoint(t.PaymentID, "POST:/charge")
	return t
}

// NewTopologyStore returns an in-memory store loaded with NewTopology.
func NewTopologyStore(ctx context.Context) (*docstore.MemoryStore, *Topology, error) {
	store := docstore.NewMemoryStore()
	topo := NewTopology()
	if err := topo.Load(ctx, store, nil); err != nil {
		return nil, nil, err
	}
	return store, topo, nil
}
