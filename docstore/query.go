package docstore

// Query is one clause of a structured search. The set of clause kinds is
// closed: TermQuery, RangeQuery, MatchQuery and BoolQuery.
type Query interface {
	// Source renders the clause in the Elasticsearch query DSL.
	Source() map[string]any
	isQuery()
}

// TermQuery matches documents whose field equals Value exactly.
type TermQuery struct {
	Field string
	Value any
}

// Term creates an exact-match clause.
func Term(field string, value any) TermQuery {
	return TermQuery{Field: field, Value: value}
}

// Source implements Query.
func (q TermQuery) Source() map[string]any {
	return map[string]any{"term": map[string]any{q.Field: q.Value}}
}

func (TermQuery) isQuery() {}

// RangeQuery matches documents whose numeric field lies within the bounds.
// Nil bounds are open.
type RangeQuery struct {
	Field string
	GTE   *int64
	LTE   *int64
}

// Range creates an unbounded range clause; use Gte and Lte to add bounds.
func Range(field string) RangeQuery {
	return RangeQuery{Field: field}
}

// Gte sets the inclusive lower bound.
func (q RangeQuery) Gte(v int64) RangeQuery {
	q.GTE = &v
	return q
}

// Lte sets the inclusive upper bound.
func (q RangeQuery) Lte(v int64) RangeQuery {
	q.LTE = &v
	return q
}

// Source implements Query.
func (q RangeQuery) Source() map[string]any {
	bounds := map[string]any{}
	if q.GTE != nil {
		bounds["gte"] = *q.GTE
	}
	if q.LTE != nil {
		bounds["lte"] = *q.LTE
	}
	return map[string]any{"range": map[string]any{q.Field: bounds}}
}

func (RangeQuery) isQuery() {}

// MatchQuery is a full-text match against an analyzed field.
type MatchQuery struct {
	Field string
	Text  string
}

// Match creates a full-text clause.
func Match(field, text string) MatchQuery {
	return MatchQuery{Field: field, Text: text}
}

// Source implements Query.
func (q MatchQuery) Source() map[string]any {
	return map[string]any{"match": map[string]any{q.Field: q.Text}}
}

func (MatchQuery) isQuery() {}

// BoolQuery requires every Must clause to match. A BoolQuery without clauses
// matches all documents.
type BoolQuery struct {
	Must []Query
}

// Bool creates a conjunction of clauses.
func Bool(must ...Query) *BoolQuery {
	return &BoolQuery{Must: must}
}

// AddMust appends a required clause.
func (q *BoolQuery) AddMust(clause Query) *BoolQuery {
	q.Must = append(q.Must, clause)
	return q
}

// Source implements Query.
func (q *BoolQuery) Source() map[string]any {
	must := make([]any, 0, len(q.Must))
	for _, clause := range q.Must {
		must = append(must, clause.Source())
	}
	body := map[string]any{}
	if len(must) > 0 {
		body["must"] = must
	}
	return map[string]any{"bool": body}
}

func (*BoolQuery) isQuery() {}

// SearchRequest is a query with an upper bound on returned hits. The store
// may return fewer than Size hits; a zero Size returns none.
type SearchRequest struct {
	Query Query
	Size  int
}

// Source renders the request body in the Elasticsearch search DSL.
func (r SearchRequest) Source() map[string]any {
	body := map[string]any{"size": r.Size}
	if r.Query != nil {
		body["query"] = r.Query.Source()
	}
	return body
}

// Hit is one search result row.
type Hit struct {
	Index  string
	ID     string
	Source map[string]any
}

// SearchResponse holds hits in the order the store returned them.
type SearchResponse struct {
	Total int64
	Hits  []Hit
}
