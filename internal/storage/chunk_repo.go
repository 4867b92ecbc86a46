package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ChunkRepo provides methods for document and chunk operations.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// UpsertDocument inserts a document or updates its name and hash. The
// knowledge base must exist.
func (r *ChunkRepo) UpsertDocument(ctx context.Context, doc Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, kb_id, name, hash) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, hash = excluded.hash`,
		doc.ID, doc.KBID, doc.Name, doc.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// GetDocument gets a document by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := r.db.QueryRowContext(ctx,
		"SELECT id, kb_id, name, hash FROM documents WHERE id = ?",
		id,
	).Scan(&doc.ID, &doc.KBID, &doc.Name, &doc.Hash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return &doc, nil
}

// ChunkIDsByDocument lists the IDs of the chunks of a document.
func (r *ChunkRepo) ChunkIDsByDocument(ctx context.Context, docID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Insert inserts a single chunk into the database.
// The chunk.ID must be set (UUID) before calling this method.
func (r *ChunkRepo) Insert(ctx context.Context, chunk *ChunkRecord) error {
	kind := chunk.Kind
	if kind == "" {
		kind = KindStandard
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chunks (id, doc_id, kb_id, content, content_ltks, image_id, kind) VALUES (?, ?, ?, ?, ?, ?, ?)",
		chunk.ID, chunk.DocID, chunk.KBID, chunk.Content, chunk.ContentLtks, chunk.ImageID, kind,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// DeleteByDocument deletes all chunks for a given document ID.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

const chunkColumns = "c.id, c.doc_id, c.kb_id, c.content, c.content_ltks, c.image_id, c.kind, d.name"

func scanChunk(scan func(dest ...any) error) (ChunkRecord, error) {
	var c ChunkRecord
	err := scan(&c.ID, &c.DocID, &c.KBID, &c.Content, &c.ContentLtks, &c.ImageID, &c.Kind, &c.DocName)
	return c, err
}

// GetByIDs returns the chunks with the given IDs keyed by ID.
// Unknown IDs are absent from the result.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) (map[string]ChunkRecord, error) {
	out := make(map[string]ChunkRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks c JOIN documents d ON d.id = c.doc_id WHERE c.id IN ("+placeholders(len(ids))+")",
		anyArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out[chunk.ID] = chunk
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}
