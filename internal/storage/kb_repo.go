package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// KnowledgeBaseRepo provides methods for knowledge base operations.
type KnowledgeBaseRepo struct {
	db *sql.DB
}

// NewKnowledgeBaseRepo creates a new KnowledgeBaseRepo.
func NewKnowledgeBaseRepo(db *sql.DB) *KnowledgeBaseRepo {
	return &KnowledgeBaseRepo{db: db}
}

// Insert inserts a knowledge base.
func (r *KnowledgeBaseRepo) Insert(ctx context.Context, kb KnowledgeBase) error {
	parser := kb.ParserID
	if parser == "" {
		parser = ParserNaive
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO knowledge_bases (id, tenant_id, name, embd_id, parser_id) VALUES (?, ?, ?, ?, ?)",
		kb.ID, kb.TenantID, kb.Name, kb.EmbeddingModel, parser,
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge base: %w", err)
	}
	return nil
}

// GetByID gets a knowledge base by its ID. Returns ErrNotFound if not found.
func (r *KnowledgeBaseRepo) GetByID(ctx context.Context, id string) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	err := r.db.QueryRowContext(ctx,
		"SELECT id, tenant_id, name, embd_id, parser_id, created_at FROM knowledge_bases WHERE id = ?",
		id,
	).Scan(&kb.ID, &kb.TenantID, &kb.Name, &kb.EmbeddingModel, &kb.ParserID, &kb.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge base: %w", err)
	}

	return &kb, nil
}

// GetByIDs returns the knowledge bases with the given IDs in request order.
// Unknown IDs are skipped.
func (r *KnowledgeBaseRepo) GetByIDs(ctx context.Context, ids []string) ([]KnowledgeBase, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, tenant_id, name, embd_id, parser_id, created_at FROM knowledge_bases WHERE id IN ("+placeholders(len(ids))+")",
		anyArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge bases: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	byID := make(map[string]KnowledgeBase, len(ids))
	for rows.Next() {
		var kb KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.TenantID, &kb.Name, &kb.EmbeddingModel, &kb.ParserID, &kb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge base: %w", err)
		}
		byID[kb.ID] = kb
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	kbs := make([]KnowledgeBase, 0, len(byID))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		kb, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kbs = append(kbs, kb)
	}
	return kbs, nil
}

// SetFieldMap replaces the field map of a knowledge base. Field order is kept.
func (r *KnowledgeBaseRepo) SetFieldMap(ctx context.Context, kbID string, fields []Field) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM kb_fields WHERE kb_id = ?", kbID); err != nil {
		return fmt.Errorf("failed to clear field map: %w", err)
	}
	for i, f := range fields {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kb_fields (kb_id, position, name, label) VALUES (?, ?, ?, ?)",
			kbID, i, f.Name, f.Label,
		); err != nil {
			return fmt.Errorf("failed to insert field %s: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit field map: %w", err)
	}
	return nil
}

// FieldMap returns the merged tabular field map of the given knowledge bases.
// Fields keep the order of kbIDs, then their position; a field name seen
// twice keeps its first label.
func (r *KnowledgeBaseRepo) FieldMap(ctx context.Context, kbIDs []string) ([]Field, error) {
	if len(kbIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT kb_id, name, label FROM kb_fields WHERE kb_id IN ("+placeholders(len(kbIDs))+") ORDER BY position",
		anyArgs(kbIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query field map: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	perKB := make(map[string][]Field)
	for rows.Next() {
		var kbID string
		var f Field
		if err := rows.Scan(&kbID, &f.Name, &f.Label); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		perKB[kbID] = append(perKB[kbID], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	var fields []Field
	seen := make(map[string]struct{})
	for _, kbID := range kbIDs {
		for _, f := range perKB[kbID] {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anyArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
