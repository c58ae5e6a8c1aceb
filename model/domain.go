package model

import "slices"

// Service is the API view of a service. Rows of one service in several layers
// are separate Services until merged with MergeServices.
type Service struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ShortName string   `json:"shortName"`
	Group     string   `json:"group"`
	Layers    []string `json:"layers"`
}

// Attribute is a property bag entry that has no dedicated field.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ServiceInstance is the API view of an instance.
type ServiceInstance struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	InstanceUUID string      `json:"instanceUUID"`
	Layer        string      `json:"layer"`
	Language     Language    `json:"language"`
	Attributes   []Attribute `json:"attributes"`
}

// Endpoint is the API view of an endpoint.
type Endpoint struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ToService maps a service row to its API view.
func ToService(r ServiceTraffic) Service {
	return Service{
		ID:        r.ServiceID,
		Name:      r.Name,
		ShortName: r.ShortName,
		Group:     r.Group,
		Layers:    []string{r.Layer.String()},
	}
}

// ToServiceInstance maps an instance row to its API view. The language
// property becomes Language; every other property becomes an Attribute in
// bag order. Language is UNKNOWN when the bag or the key is missing.
func ToServiceInstance(r InstanceTraffic) ServiceInstance {
	id := r.StorageID()
	inst := ServiceInstance{
		ID:           id,
		Name:         r.Name,
		InstanceUUID: id,
		Layer:        r.Layer.String(),
		Language:     LanguageUnknown,
		Attributes:   []Attribute{},
	}
	for _, prop := range r.Properties {
		if prop.Key == PropertyLanguage {
			inst.Language = ParseLanguage(prop.Value.String())
			continue
		}
		inst.Attributes = append(inst.Attributes, Attribute{Name: prop.Key, Value: prop.Value.String()})
	}
	return inst
}

// ToEndpoint maps an endpoint row to its API view.
func ToEndpoint(r EndpointTraffic) Endpoint {
	return Endpoint{
		ID:   r.StorageID(),
		Name: r.Name,
	}
}

// MergeServices folds rows sharing an id into one Service, keeping first-seen
// order of services and of their layers.
func MergeServices(rows []Service) []Service {
	merged := make([]Service, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		i, ok := index[row.ID]
		if !ok {
			index[row.ID] = len(merged)
			row.Layers = append([]string(nil), row.Layers...)
			merged = append(merged, row)
			continue
		}
		for _, layer := range row.Layers {
			if !slices.Contains(merged[i].Layers, layer) {
				merged[i].Layers = append(merged[i].Layers, layer)
			}
		}
	}
	return merged
}
