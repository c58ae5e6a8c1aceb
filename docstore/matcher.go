package docstore

import (
	"encoding/json"
	"strings"
	"unicode"
)

const (
	idField     = "_id"
	matchSuffix = "_match"
)

// Matches evaluates a query against one document in process. It backs the
// in-memory and KV stores, which have no query engine of their own.
//
// Term compares numbers by value and everything else by equality. Match is an
// OR over lower-cased word tokens, like the default match query on a standard
// analyzer; a missing "<field>_match" falls back to "<field>".
func Matches(q Query, id string, doc map[string]any) bool {
	switch q := q.(type) {
	case nil:
		return true
	case TermQuery:
		if q.Field == idField {
			s, ok := q.Value.(string)
			return ok && s == id
		}
		v, ok := doc[q.Field]
		return ok && equalValues(v, q.Value)
	case RangeQuery:
		n, ok := toFloat(doc[q.Field])
		if !ok {
			return false
		}
		if q.GTE != nil && n < float64(*q.GTE) {
			return false
		}
		if q.LTE != nil && n > float64(*q.LTE) {
			return false
		}
		return true
	case MatchQuery:
		return matchText(lookupText(doc, q.Field), q.Text)
	case *BoolQuery:
		for _, clause := range q.Must {
			if !Matches(clause, id, doc) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func lookupText(doc map[string]any, field string) string {
	v, ok := doc[field]
	if !ok && strings.HasSuffix(field, matchSuffix) {
		v = doc[strings.TrimSuffix(field, matchSuffix)]
	}
	s, _ := v.(string)
	return s
}

func matchText(text, query string) bool {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return false
	}
	docTokens := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		docTokens[tok] = struct{}{}
	}
	for _, tok := range queryTokens {
		if _, ok := docTokens[tok]; ok {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func equalValues(stored, want any) bool {
	if a, ok := toFloat(stored); ok {
		b, ok := toFloat(want)
		return ok && a == b
	}
	switch s := stored.(type) {
	case string:
		w, ok := want.(string)
		return ok && s == w
	case bool:
		w, ok := want.(bool)
		return ok && s == w
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
