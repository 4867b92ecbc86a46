// Package retrieval implements hybrid chunk retrieval over the vector store,
// similarity based citation insertion and read-only SQL over tabular indexes.
package retrieval

import (
	"context"

	"github.com/taurusduan/ragflow-plus/internal/storage"
)

// Chunk is a retrieved passage. Vector is retrieval-internal and must be
// stripped before a chunk leaves the service boundary.
type Chunk struct {
	ChunkID          string    `json:"chunk_id"`
	Content          string    `json:"content_with_weight"`
	ContentLtks      string    `json:"content_ltks"`
	DocID            string    `json:"doc_id"`
	DocName          string    `json:"docnm_kwd"`
	KBID             string    `json:"kb_id"`
	ImageID          string    `json:"image_id"`
	Similarity       float64   `json:"similarity"`
	VectorSimilarity float64   `json:"vector_similarity"`
	TermSimilarity   float64   `json:"term_similarity"`
	Vector           []float32 `json:"vector,omitempty"`
}

// DocAgg counts the chunks of one document.
type DocAgg struct {
	DocName string `json:"doc_name"`
	DocID   string `json:"doc_id"`
	Count   int    `json:"count"`
}

// Result is the outcome of a retrieval. DocAggs is not guaranteed to cover
// every document referenced by Chunks.
type Result struct {
	Total   int      `json:"total"`
	Chunks  []Chunk  `json:"chunks"`
	DocAggs []DocAgg `json:"doc_aggs"`
}

// TableResult is the result set of a tabular query.
type TableResult = storage.TableResult

// Embedder produces embedding vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores texts against a query. Scores are in [0, 1].
type Reranker interface {
	Similarity(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Request describes a retrieval.
type Request struct {
	Question     string
	Embedder     Embedder
	TenantIDs    []string
	KBIDs        []string
	DocIDs       []string
	Page         int     // 1-based, defaults to 1
	PageSize     int     // defaults to 30
	Top          int     // vector candidates, defaults to 1024
	Threshold    float64 // minimum hybrid similarity
	VectorWeight float64 // weight of the vector similarity in [0, 1]
	Reranker     Reranker
}

// Defaults applied to a zero Request.
const (
	DefaultPageSize = 30
	DefaultTop      = 1024
)
