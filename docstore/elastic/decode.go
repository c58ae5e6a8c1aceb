package elastic

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/errors"
)

var parserPool fastjson.ParserPool

// decodeSearchResponse reads hits in response order. Numbers are kept as
// json.Number so integer buckets survive without float rounding. Object
// fields of _source come back as json.RawMessage in their stored key order.
func decodeSearchResponse(raw []byte) (*docstore.SearchResponse, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, malformed(err, "parse response")
	}

	hits := v.Get("hits")
	if hits == nil {
		return nil, malformed(fmt.Errorf("response has no hits"), "read hits")
	}

	resp := &docstore.SearchResponse{Total: hits.GetInt64("total", "value")}
	list := hits.GetArray("hits")
	resp.Hits = make([]docstore.Hit, 0, len(list))
	for i, h := range list {
		src := h.Get("_source")
		source := map[string]any{}
		if src != nil {
			obj, err := src.Object()
			if err != nil {
				return nil, malformed(fmt.Errorf("hit %d: _source is %s", i, src.Type()), "read hit")
			}
			obj.Visit(func(key []byte, val *fastjson.Value) {
				source[string(key)] = sourceField(val)
			})
		}
		resp.Hits = append(resp.Hits, docstore.Hit{
			Index:  string(h.GetStringBytes("_index")),
			ID:     string(h.GetStringBytes("_id")),
			Source: source,
		})
	}
	return resp, nil
}

// sourceField keeps a nested object as its JSON text. Converting it to a Go
// map would lose the key order property bags are rendered in.
func sourceField(v *fastjson.Value) any {
	if v.Type() == fastjson.TypeObject {
		return json.RawMessage(v.MarshalTo(nil))
	}
	return toAny(v)
}

func toAny(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		m := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			m[string(key)] = toAny(val)
		})
		return m
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, toAny(item))
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return json.Number(v.String())
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

func malformed(err error, action string) error {
	return errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrMalformedResponse, err),
		"Client", "Search", action)
}
