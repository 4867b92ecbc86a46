package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/storage"
	"github.com/taurusduan/ragflow-plus/internal/vectorstore"
)

var tracer = otel.Tracer("ragflow.retrieval")

// ChunkReader loads chunk texts by ID.
type ChunkReader interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]storage.ChunkRecord, error)
}

// TableQuerier runs read-only SQL over tabular indexes.
type TableQuerier interface {
	Query(ctx context.Context, query string) (storage.TableResult, error)
}

// Service retrieves chunks from the vector store and joins them with their
// stored text. A Service searches one chunk kind.
type Service struct {
	store      vectorstore.VectorStore
	chunks     ChunkReader
	tables     TableQuerier
	collection string
	kind       string
}

// NewService creates a retrieval service over standard chunks.
func NewService(store vectorstore.VectorStore, chunks ChunkReader, tables TableQuerier, collection string) *Service {
	return &Service{
		store:      store,
		chunks:     chunks,
		tables:     tables,
		collection: collection,
		kind:       storage.KindStandard,
	}
}

// Graph returns a Service over knowledge graph chunks sharing the same stores.
func (s *Service) Graph() *Service {
	g := *s
	g.kind = storage.KindGraph
	return &g
}

// Kind returns the chunk kind searched by the service.
func (s *Service) Kind() string {
	return s.kind
}

// Retrieval embeds the question, searches the vector store and ranks the
// candidates by a blend of vector and term similarity:
//
//	similarity = VectorWeight*vector + (1-VectorWeight)*term
//
// Candidates below Threshold are dropped. The returned page carries vectors;
// DocAggs counts the chunks of the page per document, most cited first.
func (s *Service) Retrieval(ctx context.Context, req Request) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	result := Result{Chunks: []Chunk{}, DocAggs: []DocAgg{}}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return result, nil
	}
	if req.Embedder == nil {
		return result, fmt.Errorf("retrieval requires an embedder")
	}

	ctx, span := tracer.Start(ctx, "retrieval.Retrieval")
	defer span.End()

	page, pageSize, top := req.Page, req.PageSize, req.Top
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if top <= 0 {
		top = DefaultTop
	}

	queryVec, err := req.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := s.store.Search(ctx, vectorstore.SearchRequest{
		Collection: s.collection,
		Query:      queryVec,
		K:          top,
		Filter: vectorstore.Filter{
			TenantIDs: req.TenantIDs,
			KBIDs:     req.KBIDs,
			DocIDs:    req.DocIDs,
			Kind:      s.kind,
		},
		WithVectors: true,
	})
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("failed to search vectors: %w", err)
	}
	if len(hits) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.PointID)
	}
	records, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to load chunks: %w", err)
	}

	candidates := make([]Chunk, 0, len(hits))
	for _, h := range hits {
		rec, ok := records[h.PointID]
		if !ok {
			logger.WarnContext(ctx, "vector point without stored chunk", "chunk_id", h.PointID)
			continue
		}
		candidates = append(candidates, Chunk{
			ChunkID:          rec.ID,
			Content:          rec.Content,
			ContentLtks:      rec.ContentLtks,
			DocID:            rec.DocID,
			DocName:          rec.DocName,
			KBID:             rec.KBID,
			ImageID:          rec.ImageID,
			VectorSimilarity: float64(h.Score),
			Vector:           h.Vector,
		})
	}

	terms, err := s.termScores(ctx, question, candidates, req.Reranker)
	if err != nil {
		return result, err
	}

	ranked := make([]Chunk, 0, len(candidates))
	for i, c := range candidates {
		c.TermSimilarity = terms[i]
		c.Similarity = req.VectorWeight*c.VectorSimilarity + (1-req.VectorWeight)*c.TermSimilarity
		if c.Similarity < req.Threshold {
			continue
		}
		ranked = append(ranked, c)
	}
	slices.SortStableFunc(ranked, func(a, b Chunk) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	result.Total = len(ranked)
	begin := (page - 1) * pageSize
	if begin >= len(ranked) {
		return result, nil
	}
	end := min(begin+pageSize, len(ranked))
	result.Chunks = append(result.Chunks, ranked[begin:end]...)
	result.DocAggs = aggregateDocs(result.Chunks)

	span.SetAttributes(
		attribute.Int("retrieval.candidates", len(candidates)),
		attribute.Int("retrieval.total", result.Total),
		attribute.String("retrieval.kind", s.kind),
	)
	logger.DebugContext(ctx, "retrieval completed", "candidates", len(candidates), "total", result.Total, "page_chunks", len(result.Chunks))
	return result, nil
}

func (s *Service) termScores(ctx context.Context, question string, candidates []Chunk, reranker Reranker) ([]float64, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.ContentLtks
		if texts[i] == "" {
			texts[i] = c.Content
		}
	}

	if reranker != nil {
		scores, err := reranker.Similarity(ctx, question, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to rerank: %w", err)
		}
		if len(scores) != len(texts) {
			return nil, fmt.Errorf("reranker returned %d scores for %d texts", len(scores), len(texts))
		}
		return scores, nil
	}

	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = termSimilarity(question, text)
	}
	return scores, nil
}

// aggregateDocs counts chunks per document, most frequent first. Ties keep
// first-seen order.
func aggregateDocs(chunks []Chunk) []DocAgg {
	aggs := make([]DocAgg, 0)
	index := make(map[string]int)
	for _, c := range chunks {
		if i, ok := index[c.DocID]; ok {
			aggs[i].Count++
			continue
		}
		index[c.DocID] = len(aggs)
		aggs = append(aggs, DocAgg{DocName: c.DocName, DocID: c.DocID, Count: 1})
	}
	slices.SortStableFunc(aggs, func(a, b DocAgg) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return aggs
}

// SQLRetrieval executes a generated SELECT statement against the tabular indexes.
func (s *Service) SQLRetrieval(ctx context.Context, query string) (TableResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.SQLRetrieval")
	defer span.End()

	res, err := s.tables.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		return TableResult{}, err
	}
	span.SetAttributes(attribute.Int("retrieval.rows", len(res.Rows)))
	return res, nil
}
