package model

// Mappings returns the field mappings of a logical index for stores that need
// them declared up front. Identifiers and names are exact-match keywords; the
// match companion of the endpoint name is analyzed text. The property bag is
// kept in the source only. Unknown indices return nil.
func Mappings(logical string) map[string]any {
	var props map[string]any
	switch logical {
	case ServiceTrafficIndex:
		props = map[string]any{
			FieldName:         keyword(),
			FieldShortName:    keyword(),
			FieldServiceID:    keyword(),
			FieldServiceGroup: keyword(),
			FieldLayer:        integer(),
			FieldTimeBucket:   long(),
		}
	case InstanceTrafficIndex:
		props = map[string]any{
			FieldServiceID:  keyword(),
			FieldName:       keyword(),
			FieldLastPing:   long(),
			FieldLayer:      integer(),
			FieldTimeBucket: long(),
			FieldProperties: map[string]any{"type": "text", "index": false},
		}
	case EndpointTrafficIndex:
		props = map[string]any{
			FieldServiceID:        keyword(),
			FieldName:             keyword(),
			MatchField(FieldName): map[string]any{"type": "text"},
			FieldTimeBucket:       long(),
		}
	default:
		return nil
	}
	return map[string]any{"properties": props}
}

// Indices lists the logical indices of the traffic record families.
func Indices() []string {
	return []string{ServiceTrafficIndex, InstanceTrafficIndex, EndpointTrafficIndex}
}

func keyword() map[string]any { return map[string]any{"type": "keyword"} }
func integer() map[string]any { return map[string]any{"type": "integer"} }
func long() map[string]any    { return map[string]any{"type": "long"} }
