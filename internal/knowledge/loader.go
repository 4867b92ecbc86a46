// Package knowledge loads knowledge bases from a manifest into the chunk,
// vector and tabular stores the answer pipeline reads.
package knowledge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
	"github.com/taurusduan/ragflow-plus/internal/storage"
	"github.com/taurusduan/ragflow-plus/internal/vectorstore"
)

// ErrKnowledgeBaseMismatch is returned when a stored knowledge base
// disagrees with its manifest entry on tenant, parser or embedding model.
var ErrKnowledgeBaseMismatch = errors.New("knowledge base does not match manifest")

const embedBatchSize = 32

// KnowledgeBaseWriter creates knowledge bases and their field maps.
type KnowledgeBaseWriter interface {
	GetByID(ctx context.Context, id string) (*storage.KnowledgeBase, error)
	Insert(ctx context.Context, kb storage.KnowledgeBase) error
	SetFieldMap(ctx context.Context, kbID string, fields []storage.Field) error
}

// DocumentWriter stores documents and their chunk text.
type DocumentWriter interface {
	GetDocument(ctx context.Context, id string) (*storage.Document, error)
	UpsertDocument(ctx context.Context, doc storage.Document) error
	ChunkIDsByDocument(ctx context.Context, docID string) ([]string, error)
	DeleteByDocument(ctx context.Context, docID string) error
	Insert(ctx context.Context, chunk *storage.ChunkRecord) error
}

// TableWriter stores rows of tabular knowledge bases.
type TableWriter interface {
	EnsureTable(ctx context.Context, tenantID string, fields []string) error
	DeleteRows(ctx context.Context, tenantID, docID string) error
	InsertRow(ctx context.Context, tenantID string, doc storage.Document, values map[string]any) error
}

// EmbedderProvider resolves the embedding model of a knowledge base.
type EmbedderProvider interface {
	Embedder(ctx context.Context, tenantID, modelID string) (retrieval.Embedder, error)
}

// Stats summarizes a load.
type Stats struct {
	Documents int // Documents (re)loaded
	Skipped   int // Documents unchanged since the last load
	Chunks    int
	Rows      int
	Errors    int
}

// Loader writes manifest documents into the stores.
type Loader struct {
	kbs        KnowledgeBaseWriter
	docs       DocumentWriter
	tables     TableWriter
	vectors    vectorstore.VectorStore
	embedders  EmbedderProvider
	chunker    *Chunker
	collection string
}

// NewLoader creates a loader that upserts chunk vectors into collection.
func NewLoader(kbs KnowledgeBaseWriter, docs DocumentWriter, tables TableWriter, vectors vectorstore.VectorStore, embedders EmbedderProvider, collection string) *Loader {
	return &Loader{
		kbs:        kbs,
		docs:       docs,
		tables:     tables,
		vectors:    vectors,
		embedders:  embedders,
		chunker:    NewChunker(),
		collection: collection,
	}
}

// Load loads every knowledge base of m. Documents whose content hash is
// unchanged are skipped. A failing document or knowledge base is logged and
// counted; loading continues with the next one.
func (l *Loader) Load(ctx context.Context, m *Manifest) (Stats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	var stats Stats

	for _, src := range m.KnowledgeBases {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := l.loadKnowledgeBase(ctx, m, src, &stats); err != nil {
			logger.Error("failed to load knowledge base", "kb_id", src.ID, "error", err)
			stats.Errors++
		}
	}

	logger.Info("knowledge load completed",
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"chunks", stats.Chunks,
		"rows", stats.Rows,
		"errors", stats.Errors,
	)
	if stats.Errors > 0 {
		return stats, fmt.Errorf("loading completed with %d errors", stats.Errors)
	}
	return stats, nil
}

func (l *Loader) loadKnowledgeBase(ctx context.Context, m *Manifest, src KnowledgeBaseSource, stats *Stats) error {
	logger := contextutil.LoggerFromContext(ctx).With("kb_id", src.ID)

	if err := l.ensureKnowledgeBase(ctx, src); err != nil {
		return err
	}
	if src.ParserID() == storage.ParserTable {
		fields := src.FieldMap()
		if err := l.kbs.SetFieldMap(ctx, src.ID, fields); err != nil {
			return err
		}
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Name
		}
		if err := l.tables.EnsureTable(ctx, src.TenantID, names); err != nil {
			return err
		}
	}

	files, err := m.Files(src)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := m.DocumentName(path)
		if err := l.loadDocument(ctx, src, path, name, stats); err != nil {
			logger.Error("failed to load document", "document", name, "error", err)
			stats.Errors++
		}
	}
	return nil
}

func (l *Loader) ensureKnowledgeBase(ctx context.Context, src KnowledgeBaseSource) error {
	existing, err := l.kbs.GetByID(ctx, src.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return l.kbs.Insert(ctx, storage.KnowledgeBase{
			ID:             src.ID,
			TenantID:       src.TenantID,
			Name:           src.Name,
			EmbeddingModel: src.EmbeddingModel,
			ParserID:       src.ParserID(),
		})
	case err != nil:
		return err
	}

	if existing.TenantID != src.TenantID || existing.EmbeddingModel != src.EmbeddingModel || existing.ParserID != src.ParserID() {
		return fmt.Errorf("%w: %s is stored for tenant %s with parser %s and model %s",
			ErrKnowledgeBaseMismatch, src.ID, existing.TenantID, existing.ParserID, existing.EmbeddingModel)
	}
	return nil
}

// DocumentID derives a stable document ID from its knowledge base and name.
func DocumentID(kbID, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("kb://"+kbID+"/"+name)).String()
}

func (l *Loader) loadDocument(ctx context.Context, src KnowledgeBaseSource, path, name string, stats *Stats) error {
	logger := contextutil.LoggerFromContext(ctx)

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	doc := storage.Document{ID: DocumentID(src.ID, name), KBID: src.ID, Name: name}
	stored, err := l.docs.GetDocument(ctx, doc.ID)
	switch {
	case err == nil && stored.Hash == hash:
		logger.Debug("document unchanged, skipping", "document", name)
		stats.Skipped++
		return nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return err
	}

	// Cleared hash marks the document incomplete until its content is stored.
	if err := l.docs.UpsertDocument(ctx, doc); err != nil {
		return err
	}

	if src.ParserID() == storage.ParserTable {
		rows, err := l.loadRows(ctx, src, doc, content)
		if err != nil {
			return err
		}
		stats.Rows += rows
	} else {
		chunks, err := l.loadChunks(ctx, src, doc, content)
		if err != nil {
			return err
		}
		stats.Chunks += chunks
	}

	doc.Hash = hash
	if err := l.docs.UpsertDocument(ctx, doc); err != nil {
		return err
	}
	stats.Documents++
	logger.Info("loaded document", "kb_id", src.ID, "document", name)
	return nil
}

func (l *Loader) loadChunks(ctx context.Context, src KnowledgeBaseSource, doc storage.Document, content []byte) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	title := strings.TrimSuffix(filepath.Base(doc.Name), filepath.Ext(doc.Name))
	sections := l.chunker.Split(content, title)

	embedder, err := l.embedders.Embedder(ctx, src.TenantID, src.EmbeddingModel)
	if err != nil {
		return 0, err
	}
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.HeadingPath + "\n" + s.Text
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(sections) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(sections))
	}

	oldIDs, err := l.docs.ChunkIDsByDocument(ctx, doc.ID)
	if err != nil {
		return 0, err
	}
	if len(oldIDs) > 0 {
		if err := l.vectors.Delete(ctx, l.collection, oldIDs); err != nil {
			logger.Warn("failed to delete old points", "doc_id", doc.ID, "error", err)
		}
		if err := l.docs.DeleteByDocument(ctx, doc.ID); err != nil {
			return 0, err
		}
	}
	if len(sections) == 0 {
		return 0, nil
	}

	kind := storage.KindStandard
	if src.ParserID() == storage.ParserKnowledgeGraph {
		kind = storage.KindGraph
	}
	docUUID := uuid.MustParse(doc.ID)
	points := make([]vectorstore.Point, len(sections))
	for i, s := range sections {
		id := uuid.NewSHA1(docUUID, []byte(strconv.Itoa(i))).String()
		record := &storage.ChunkRecord{
			ID:          id,
			DocID:       doc.ID,
			KBID:        src.ID,
			Content:     s.Text,
			ContentLtks: strings.Join(retrieval.Tokenize(texts[i]), " "),
			ImageID:     s.ImageID,
			Kind:        kind,
		}
		if err := l.docs.Insert(ctx, record); err != nil {
			return 0, err
		}
		points[i] = vectorstore.Point{
			ID:  id,
			Vec: vectors[i],
			Meta: map[string]any{
				vectorstore.PayloadTenantID: src.TenantID,
				vectorstore.PayloadKBID:     src.ID,
				vectorstore.PayloadDocID:    doc.ID,
				vectorstore.PayloadKind:     kind,
			},
		}
	}
	if err := l.vectors.Upsert(ctx, l.collection, points); err != nil {
		return 0, fmt.Errorf("failed to upsert points: %w", err)
	}
	return len(sections), nil
}

// loadRows replaces the document's rows with the records of a CSV file whose
// header names the knowledge base fields. Unknown columns are ignored.
func (l *Loader) loadRows(ctx context.Context, src KnowledgeBaseSource, doc storage.Document, content []byte) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	r := csv.NewReader(bytes.NewReader(content))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to parse CSV: %w", err)
	}

	if err := l.tables.DeleteRows(ctx, src.TenantID, doc.ID); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	known := make(map[string]bool, len(src.Fields))
	for _, f := range src.Fields {
		known[f.Name] = true
	}
	columns := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if !known[h] {
			logger.Warn("ignoring unknown column", "document", doc.Name, "column", h)
			continue
		}
		columns[i] = h
	}

	rows := 0
	for _, rec := range records[1:] {
		values := make(map[string]any, len(columns))
		for i, col := range columns {
			if col == "" || i >= len(rec) {
				continue
			}
			if v := cellValue(rec[i]); v != nil {
				values[col] = v
			}
		}
		if len(values) == 0 {
			continue
		}
		if err := l.tables.InsertRow(ctx, src.TenantID, doc, values); err != nil {
			return rows, err
		}
		rows++
	}
	return rows, nil
}

// cellValue converts a CSV cell to an integer, float or string. Empty cells
// are nil.
func cellValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
