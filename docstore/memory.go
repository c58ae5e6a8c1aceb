package docstore

import (
	"context"
	"maps"
	"sync"

	"github.com/c360/metaquery/errors"
)

// MemoryStore is an in-process Store. Hits are returned in insertion order;
// replacing a document keeps its insertion position.
type MemoryStore struct {
	mu      sync.RWMutex
	indices map[string]*memoryIndex
}

type memoryIndex struct {
	order []string
	docs  map[string]map[string]any
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indices: make(map[string]*memoryIndex)}
}

// Put implements Writer.
func (s *MemoryStore) Put(ctx context.Context, index, id string, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "MemoryStore", "Put", "check context")
	}
	if index == "" || id == "" {
		return errors.WrapInvalid(errors.ErrInvalidRequest, "MemoryStore", "Put", "require index and id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[index]
	if !ok {
		idx = &memoryIndex{docs: make(map[string]map[string]any)}
		s.indices[index] = idx
	}
	if _, exists := idx.docs[id]; !exists {
		idx.order = append(idx.order, id)
	}
	idx.docs[id] = maps.Clone(doc)
	return nil
}

// Delete removes a document. Missing documents are ignored.
func (s *MemoryStore) Delete(_ context.Context, index, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[index]
	if !ok {
		return
	}
	if _, exists := idx.docs[id]; !exists {
		return
	}
	delete(idx.docs, id)
	for i, existing := range idx.order {
		if existing == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of documents in an index.
func (s *MemoryStore) Len(index string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, ok := s.indices[index]; ok {
		return len(idx.docs)
	}
	return 0
}

// Search implements Client. An unknown index yields no hits.
func (s *MemoryStore) Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error) {
	if err := ValidateRequest(index, req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "MemoryStore", "Search", "check context")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &SearchResponse{Hits: []Hit{}}
	idx, ok := s.indices[index]
	if !ok {
		return resp, nil
	}

	for _, id := range idx.order {
		doc := idx.docs[id]
		if !Matches(req.Query, id, doc) {
			continue
		}
		resp.Total++
		if len(resp.Hits) < req.Size {
			resp.Hits = append(resp.Hits, Hit{Index: index, ID: id, Source: maps.Clone(doc)})
		}
	}
	return resp, nil
}
