package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/valyala/fastjson"

	"github.com/c360/metaquery/errors"
)

// PropertyLanguage is the property bag key promoted to ServiceInstance.Language.
const PropertyLanguage = "language"

// ValueKind identifies which variant a PropertyValue holds.
type ValueKind int

// Property value variants
const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

// String returns the variant name
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// PropertyValue is a scalar stored in an instance property bag. Numbers keep
// their textual form so that "123" and "123.0" render the way they were written.
type PropertyValue struct {
	kind ValueKind
	text string
	b    bool
}

// StringValue creates a string property value.
func StringValue(s string) PropertyValue {
	return PropertyValue{kind: KindString, text: s}
}

// NumberValue creates a number property value.
func NumberValue(f float64) PropertyValue {
	return PropertyValue{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// BoolValue creates a boolean property value.
func BoolValue(b bool) PropertyValue {
	return PropertyValue{kind: KindBool, b: b}
}

func rawNumberValue(raw string) PropertyValue {
	return PropertyValue{kind: KindNumber, text: raw}
}

// Kind reports the variant.
func (v PropertyValue) Kind() ValueKind {
	return v.kind
}

// String renders the value as an attribute string.
func (v PropertyValue) String() string {
	if v.kind == KindBool {
		return strconv.FormatBool(v.b)
	}
	return v.text
}

// Property is one key/value entry of a property bag.
type Property struct {
	Key   string
	Value PropertyValue
}

// Properties is an ordered property bag. A nil bag means no bag was stored,
// which is distinct from an empty one.
type Properties []Property

// Get returns the first value stored under key.
func (p Properties) Get(key string) (PropertyValue, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return PropertyValue{}, false
}

// Set replaces the value under key or appends a new entry.
func (p Properties) Set(key string, value PropertyValue) Properties {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Property{Key: key, Value: value})
}

var parserPool fastjson.ParserPool

// ParseProperties decodes a JSON object string preserving key order. An empty
// string decodes to a nil bag.
func ParseProperties(raw string) (Properties, error) {
	if raw == "" {
		return nil, nil
	}

	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.Parse(raw)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMalformedDocument, err),
			"Properties", "ParseProperties", "parse property bag")
	}
	if v.Type() == fastjson.TypeNull {
		return nil, nil
	}
	obj, err := v.Object()
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: property bag is %s", errors.ErrMalformedDocument, v.Type()),
			"Properties", "ParseProperties", "read property object")
	}

	props := make(Properties, 0, obj.Len())
	var visitErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if visitErr != nil {
			return
		}
		pv, err := fromFastJSON(val)
		if err != nil {
			visitErr = fmt.Errorf("property %q: %w", key, err)
			return
		}
		props = append(props, Property{Key: string(key), Value: pv})
	})
	if visitErr != nil {
		return nil, errors.WrapInvalid(visitErr, "Properties", "ParseProperties", "decode property value")
	}
	return props, nil
}

func fromFastJSON(v *fastjson.Value) (PropertyValue, error) {
	switch v.Type() {
	case fastjson.TypeString:
		return StringValue(string(v.GetStringBytes())), nil
	case fastjson.TypeNumber:
		return rawNumberValue(v.String()), nil
	case fastjson.TypeTrue:
		return BoolValue(true), nil
	case fastjson.TypeFalse:
		return BoolValue(false), nil
	default:
		return PropertyValue{}, fmt.Errorf("%w: unsupported %s value", errors.ErrMalformedDocument, v.Type())
	}
}

// PropertiesFromMap converts an already decoded object. Go maps carry no
// order, so entries are sorted by key and the stored order is lost; stores
// that need it should hand the bag over as a JSON string or json.RawMessage.
func PropertiesFromMap(m map[string]any) (Properties, error) {
	if m == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	props := make(Properties, 0, len(m))
	for _, k := range keys {
		pv, err := scalarValue(m[k])
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("property %q: %w", k, err),
				"Properties", "PropertiesFromMap", "convert property value")
		}
		props = append(props, Property{Key: k, Value: pv})
	}
	return props, nil
}

func scalarValue(v any) (PropertyValue, error) {
	switch t := v.(type) {
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return rawNumberValue(strconv.Itoa(t)), nil
	case int64:
		return rawNumberValue(strconv.FormatInt(t, 10)), nil
	case json.Number:
		return rawNumberValue(t.String()), nil
	default:
		return PropertyValue{}, fmt.Errorf("%w: unsupported %T value", errors.ErrMalformedDocument, v)
	}
}

// Encode renders the bag as a JSON object string in entry order. A nil bag
// encodes to the empty string.
func (p Properties) Encode() string {
	if p == nil {
		return ""
	}
	var a fastjson.Arena
	obj := a.NewObject()
	for _, prop := range p {
		switch prop.Value.kind {
		case KindNumber:
			obj.Set(prop.Key, a.NewNumberString(prop.Value.text))
		case KindBool:
			if prop.Value.b {
				obj.Set(prop.Key, a.NewTrue())
			} else {
				obj.Set(prop.Key, a.NewFalse())
			}
		default:
			obj.Set(prop.Key, a.NewString(prop.Value.text))
		}
	}
	return string(obj.MarshalTo(nil))
}
