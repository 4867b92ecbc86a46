package storage

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func seedChunks(t *testing.T, repo *ChunkRepo, kbRepo *KnowledgeBaseRepo) {
	t.Helper()
	ctx := context.Background()
	if err := kbRepo.Insert(ctx, KnowledgeBase{ID: "kb1", TenantID: "t1", Name: "KB", EmbeddingModel: "bge"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := repo.UpsertDocument(ctx, Document{ID: "doc1", KBID: "kb1", Name: "handbook.pdf"}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	chunks := []*ChunkRecord{
		{ID: "c1", DocID: "doc1", KBID: "kb1", Content: "first chunk", ContentLtks: "first chunk"},
		{ID: "c2", DocID: "doc1", KBID: "kb1", Content: "second chunk", ImageID: "img-2", Kind: KindGraph},
	}
	for _, c := range chunks {
		if err := repo.Insert(ctx, c); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
}

func TestChunkRepo_Documents(t *testing.T) {
	db := newTestDB(t)
	repo := NewChunkRepo(db)
	seedChunks(t, repo, NewKnowledgeBaseRepo(db))
	ctx := context.Background()

	doc, err := repo.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Name != "handbook.pdf" || doc.Hash != "" {
		t.Errorf("GetDocument() = %+v, want handbook.pdf without hash", doc)
	}

	if err := repo.UpsertDocument(ctx, Document{ID: "doc1", KBID: "kb1", Name: "handbook-v2.pdf", Hash: "abc"}); err != nil {
		t.Fatalf("UpsertDocument() update error = %v", err)
	}
	doc, err = repo.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Name != "handbook-v2.pdf" || doc.Hash != "abc" {
		t.Errorf("GetDocument() after upsert = %+v, want handbook-v2.pdf with hash abc", doc)
	}

	// The update must not cascade to the chunks of the document
	ids, err := repo.ChunkIDsByDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("ChunkIDsByDocument() error = %v", err)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"c1", "c2"}) {
		t.Errorf("ChunkIDsByDocument() = %v, want [c1 c2]", ids)
	}

	if _, err := repo.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument(missing) error = %v, want ErrNotFound", err)
	}
}

func TestChunkRepo_GetByIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewChunkRepo(db)
	seedChunks(t, repo, NewKnowledgeBaseRepo(db))

	got, err := repo.GetByIDs(context.Background(), []string{"c1", "c2", "c3"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetByIDs() returned %d chunks, want 2", len(got))
	}
	if got["c1"].DocName != "handbook.pdf" || got["c1"].Kind != KindStandard {
		t.Errorf("GetByIDs()[c1] = %+v, want handbook.pdf standard chunk", got["c1"])
	}
	if got["c2"].ImageID != "img-2" || got["c2"].Kind != KindGraph {
		t.Errorf("GetByIDs()[c2] = %+v", got["c2"])
	}

	empty, err := repo.GetByIDs(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetByIDs(nil) = %v, %v, want empty", empty, err)
	}
}

func TestChunkRepo_InsertRequiresDocument(t *testing.T) {
	repo := NewChunkRepo(newTestDB(t))
	err := repo.Insert(context.Background(), &ChunkRecord{ID: "c1", DocID: "ghost", KBID: "kb1", Content: "x"})
	if err == nil {
		t.Error("Insert() with unknown document should fail the foreign key")
	}
}

func TestChunkRepo_DeleteByDocument(t *testing.T) {
	db := newTestDB(t)
	repo := NewChunkRepo(db)
	seedChunks(t, repo, NewKnowledgeBaseRepo(db))

	if err := repo.DeleteByDocument(context.Background(), "doc1"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	got, err := repo.GetByIDs(context.Background(), []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetByIDs() after delete returned %d chunks, want 0", len(got))
	}
	if ids, _ := repo.ChunkIDsByDocument(context.Background(), "doc1"); len(ids) != 0 {
		t.Errorf("ChunkIDsByDocument() after delete = %v, want none", ids)
	}
}
