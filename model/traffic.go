package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/c360/metaquery/errors"
)

// Logical index names of the traffic record families.
const (
	ServiceTrafficIndex  = "service_traffic"
	InstanceTrafficIndex = "instance_traffic"
	EndpointTrafficIndex = "endpoint_traffic"
)

// Persisted field names.
const (
	FieldID           = "_id"
	FieldName         = "name"
	FieldShortName    = "short_name"
	FieldServiceID    = "service_id"
	FieldServiceGroup = "service_group"
	FieldLayer        = "layer"
	FieldLastPing     = "last_ping"
	FieldProperties   = "properties"
	FieldTimeBucket   = "time_bucket"
)

// MatchField returns the analyzed companion of a text field used by keyword search.
func MatchField(field string) string {
	return field + "_match"
}

const groupSeparator = "::"

// ServiceTraffic is the persisted record of a service within one layer.
type ServiceTraffic struct {
	ServiceID  string
	Name       string
	ShortName  string
	Group      string
	Layer      Layer
	TimeBucket int64
}

// InstanceTraffic is the persisted record of a service instance.
type InstanceTraffic struct {
	ServiceID  string
	Name       string
	LastPing   int64
	Properties Properties
	Layer      Layer
	TimeBucket int64
}

// EndpointTraffic is the persisted record of a service endpoint.
type EndpointTraffic struct {
	ServiceID  string
	Name       string
	TimeBucket int64
}

// StorageID is the document id of the service row. Rows of the same service in
// different layers share ServiceID but not StorageID.
func (r ServiceTraffic) StorageID() string {
	return r.ServiceID + "-" + strconv.Itoa(r.Layer.Value())
}

// StorageID is the document id of the instance row.
func (r InstanceTraffic) StorageID() string {
	return BuildInstanceID(r.ServiceID, r.Name)
}

// StorageID is the document id of the endpoint row.
func (r EndpointTraffic) StorageID() string {
	return BuildEndpointID(r.ServiceID, r.Name)
}

// ServiceTrafficFromStorage builds a record from a stored document. Short name
// and group fall back to splitting a "group::shortName" service name.
func ServiceTrafficFromStorage(doc map[string]any) (ServiceTraffic, error) {
	var r ServiceTraffic
	var err error
	if r.Name, err = stringField(doc, FieldName); err != nil {
		return r, wrapDecode(err, "ServiceTrafficFromStorage")
	}
	if r.ServiceID, err = stringField(doc, FieldServiceID); err != nil {
		return r, wrapDecode(err, "ServiceTrafficFromStorage")
	}
	if r.ShortName, err = stringField(doc, FieldShortName); err != nil {
		return r, wrapDecode(err, "ServiceTrafficFromStorage")
	}
	if r.Group, err = stringField(doc, FieldServiceGroup); err != nil {
		return r, wrapDecode(err, "ServiceTrafficFromStorage")
	}
	layer, err := intField(doc, FieldLayer)
	if err != nil {
		return r, wrapDecode(err, "ServiceTrafficFromStorage")
	}
	r.Layer = LayerFromValue(layer)
	if r.TimeBucket, err = intField(doc, FieldTimeBucket); err != nil {
		return r, wrapDecode(err, "ServiceTrafficFromStorage")
	}

	if r.ShortName == "" {
		group, short := SplitServiceName(r.Name)
		r.ShortName = short
		if r.Group == "" {
			r.Group = group
		}
	}
	if r.ServiceID == "" && r.Name != "" {
		r.ServiceID = BuildServiceID(r.Name, true)
	}
	return r, nil
}

// ToStorage encodes the record into its persisted document.
func (r ServiceTraffic) ToStorage() map[string]any {
	doc := map[string]any{
		FieldName:       r.Name,
		FieldShortName:  r.ShortName,
		FieldServiceID:  r.ServiceID,
		FieldLayer:      r.Layer.Value(),
		FieldTimeBucket: r.TimeBucket,
	}
	if r.Group != "" {
		doc[FieldServiceGroup] = r.Group
	}
	return doc
}

// InstanceTrafficFromStorage builds a record from a stored document. The
// properties field may hold a JSON object string or a decoded object.
func InstanceTrafficFromStorage(doc map[string]any) (InstanceTraffic, error) {
	var r InstanceTraffic
	var err error
	if r.ServiceID, err = stringField(doc, FieldServiceID); err != nil {
		return r, wrapDecode(err, "InstanceTrafficFromStorage")
	}
	if r.Name, err = stringField(doc, FieldName); err != nil {
		return r, wrapDecode(err, "InstanceTrafficFromStorage")
	}
	if r.LastPing, err = intField(doc, FieldLastPing); err != nil {
		return r, wrapDecode(err, "InstanceTrafficFromStorage")
	}
	layer, err := intField(doc, FieldLayer)
	if err != nil {
		return r, wrapDecode(err, "InstanceTrafficFromStorage")
	}
	r.Layer = LayerFromValue(layer)
	if r.TimeBucket, err = intField(doc, FieldTimeBucket); err != nil {
		return r, wrapDecode(err, "InstanceTrafficFromStorage")
	}

	switch raw := doc[FieldProperties].(type) {
	case nil:
	case string:
		r.Properties, err = ParseProperties(raw)
	case json.RawMessage:
		r.Properties, err = ParseProperties(string(raw))
	case map[string]any:
		r.Properties, err = PropertiesFromMap(raw)
	default:
		err = fmt.Errorf("%w: field %q has type %T", errors.ErrMalformedDocument, FieldProperties, raw)
	}
	if err != nil {
		return r, wrapDecode(err, "InstanceTrafficFromStorage")
	}
	return r, nil
}

// ToStorage encodes the record into its persisted document.
func (r InstanceTraffic) ToStorage() map[string]any {
	doc := map[string]any{
		FieldServiceID:  r.ServiceID,
		FieldName:       r.Name,
		FieldLastPing:   r.LastPing,
		FieldLayer:      r.Layer.Value(),
		FieldTimeBucket: r.TimeBucket,
	}
	if r.Properties != nil {
		doc[FieldProperties] = r.Properties.Encode()
	}
	return doc
}

// EndpointTrafficFromStorage builds a record from a stored document.
func EndpointTrafficFromStorage(doc map[string]any) (EndpointTraffic, error) {
	var r EndpointTraffic
	var err error
	if r.ServiceID, err = stringField(doc, FieldServiceID); err != nil {
		return r, wrapDecode(err, "EndpointTrafficFromStorage")
	}
	if r.Name, err = stringField(doc, FieldName); err != nil {
		return r, wrapDecode(err, "EndpointTrafficFromStorage")
	}
	if r.TimeBucket, err = intField(doc, FieldTimeBucket); err != nil {
		return r, wrapDecode(err, "EndpointTrafficFromStorage")
	}
	return r, nil
}

// ToStorage encodes the record into its persisted document. The name is also
// written to its analyzed match field.
func (r EndpointTraffic) ToStorage() map[string]any {
	return map[string]any{
		FieldServiceID:        r.ServiceID,
		FieldName:             r.Name,
		MatchField(FieldName): r.Name,
		FieldTimeBucket:       r.TimeBucket,
	}
}

// SplitServiceName splits "group::shortName". Names without a group return
// an empty group and the full name.
func SplitServiceName(name string) (group, shortName string) {
	idx := strings.Index(name, groupSeparator)
	if idx <= 0 || idx+len(groupSeparator) >= len(name) {
		return "", name
	}
	return name[:idx], name[idx+len(groupSeparator):]
}

func wrapDecode(err error, method string) error {
	if errors.IsInvalid(err) {
		return err
	}
	return errors.WrapInvalid(err, "EntityCodec", method, "decode stored document")
}

func stringField(doc map[string]any, field string) (string, error) {
	switch v := doc[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%w: field %q has type %T", errors.ErrMalformedDocument, field, v)
	}
}

func intField(doc map[string]any, field string) (int64, error) {
	switch v := doc[field].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: field %q is not integral: %v", errors.ErrMalformedDocument, field, v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", errors.ErrMalformedDocument, field, err)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", errors.ErrMalformedDocument, field, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: field %q has type %T", errors.ErrMalformedDocument, field, v)
	}
}
