package docstore

import (
	"context"
	"fmt"

	"github.com/c360/metaquery/errors"
)

// Client issues structured searches against a document store. Implementations
// must be safe for concurrent use.
type Client interface {
	Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error)
}

// Writer stores documents. Used by fixtures and the non-production backends.
type Writer interface {
	Put(ctx context.Context, index, id string, doc map[string]any) error
}

// IndexCreator prepares an index with explicit field mappings. Creating an
// index that already exists is not an error.
type IndexCreator interface {
	EnsureIndex(ctx context.Context, index string, mappings map[string]any) error
}

// Store is a Client that can also be written to.
type Store interface {
	Client
	Writer
}

// IndexResolver maps a logical index name to the physical name the store uses.
type IndexResolver interface {
	PhysicalIndex(logical string) string
}

// NamespaceResolver prefixes logical names with a namespace, so that several
// deployments can share one cluster.
type NamespaceResolver struct {
	Namespace string
}

// PhysicalIndex implements IndexResolver.
func (r NamespaceResolver) PhysicalIndex(logical string) string {
	if r.Namespace == "" {
		return logical
	}
	return r.Namespace + "_" + logical
}

// ValidateRequest checks a request before it is sent to a store.
func ValidateRequest(index string, req SearchRequest) error {
	if index == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty index name", errors.ErrInvalidRequest),
			"docstore", "ValidateRequest", "check index")
	}
	if req.Size < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative size %d", errors.ErrInvalidRequest, req.Size),
			"docstore", "ValidateRequest", "check size")
	}
	return nil
}
