package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks github.com/taurusduan/ragflow-plus/internal/vectorstore VectorStore

import "context"

// Payload keys stored with every chunk point.
const (
	PayloadTenantID = "tenant_id"
	PayloadKBID     = "kb_id"
	PayloadDocID    = "doc_id"
	PayloadKind     = "kind"
)

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Vector  []float32 // Set only when requested
	Meta    map[string]any
}

// Filter restricts a search. Empty fields do not filter.
type Filter struct {
	TenantIDs []string
	KBIDs     []string
	DocIDs    []string
	Kind      string
}

// SearchRequest describes a similarity search.
type SearchRequest struct {
	Collection  string
	Query       []float32
	K           int
	Filter      Filter
	WithVectors bool
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search with optional filters.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error
}
