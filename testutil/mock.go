package testutil

import (
	"context"
	"sync"

	"github.com/c360/metaquery/docstore"
)

// SearchCall records one Search invocation.
type SearchCall struct {
	Index   string
	Request docstore.SearchRequest
}

// MockClient is a docstore.Client for tests. SearchFunc answers requests;
// when nil, every search returns no hits.
type MockClient struct {
	mu sync.Mutex

	SearchFunc func(ctx context.Context, index string, req docstore.SearchRequest) (*docstore.SearchResponse, error)

	Calls []SearchCall
}

// NewMockClient creates a mock that answers with hits.
func NewMockClient(hits ...docstore.Hit) *MockClient {
	return &MockClient{
		SearchFunc: func(_ context.Context, _ string, _ docstore.SearchRequest) (*docstore.SearchResponse, error) {
			return &docstore.SearchResponse{Total: int64(len(hits)), Hits: hits}, nil
		},
	}
}

// NewFailingClient creates a mock whose searches fail with err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		SearchFunc: func(_ context.Context, _ string, _ docstore.SearchRequest) (*docstore.SearchResponse, error) {
			return nil, err
		},
	}
}

// Search implements docstore.Client.
func (m *MockClient) Search(ctx context.Context, index string, req docstore.SearchRequest) (*docstore.SearchResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, SearchCall{Index: index, Request: req})
	fn := m.SearchFunc
	m.mu.Unlock()

	if fn == nil {
		return &docstore.SearchResponse{Hits: []docstore.Hit{}}, nil
	}
	return fn(ctx, index, req)
}

// LastCall returns the most recent call, or false if there was none.
func (m *MockClient) LastCall() (SearchCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return SearchCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
