package storage

import (
	"context"
	"strings"
	"testing"
)

func TestIndexName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"tenant1", "ragflow_tenant1"},
		{"Tenant-ABC", "ragflow_tenant_abc"},
		{"a.b c", "ragflow_a_b_c"},
	}

	for _, tt := range tests {
		if got := IndexName(tt.input); got != tt.expected {
			t.Errorf("IndexName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func seedTable(t *testing.T) *TableRepo {
	t.Helper()
	ctx := context.Background()
	repo := NewTableRepo(newTestDB(t))
	if err := repo.EnsureTable(ctx, "t1", []string{"name_kwd", "age_int"}); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	// Second call is a no-op for existing columns and adds new ones
	if err := repo.EnsureTable(ctx, "t1", []string{"age_int", "city_kwd"}); err != nil {
		t.Fatalf("EnsureTable() second call error = %v", err)
	}

	rows := []struct {
		doc    Document
		values map[string]any
	}{
		{Document{ID: "d1", KBID: "kb1", Name: "people.csv"}, map[string]any{"name_kwd": "Ada", "age_int": 36, "city_kwd": "London"}},
		{Document{ID: "d1", KBID: "kb1", Name: "people.csv"}, map[string]any{"name_kwd": "Alan", "age_int": 41}},
		{Document{ID: "d2", KBID: "kb1", Name: "more.csv"}, map[string]any{"name_kwd": "Grace", "age_int": 85}},
	}
	for _, r := range rows {
		if err := repo.InsertRow(ctx, "t1", r.doc, r.values); err != nil {
			t.Fatalf("InsertRow() error = %v", err)
		}
	}
	return repo
}

func TestTableRepo_Query(t *testing.T) {
	repo := seedTable(t)

	res, err := repo.Query(context.Background(), "select doc_id, docnm_kwd, name_kwd, city_kwd from ragflow_t1 order by name_kwd")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	wantCols := []string{"doc_id", "docnm_kwd", "name_kwd", "city_kwd"}
	if strings.Join(res.Columns, ",") != strings.Join(wantCols, ",") {
		t.Errorf("Query() columns = %v, want %v", res.Columns, wantCols)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("Query() returned %d rows, want 3", len(res.Rows))
	}
	if res.Rows[0][2] != "Ada" {
		t.Errorf("first row name = %v, want Ada", res.Rows[0][2])
	}
	if res.Rows[1][3] != nil {
		t.Errorf("missing city = %v, want nil", res.Rows[1][3])
	}
}

func TestTableRepo_Query_Errors(t *testing.T) {
	repo := seedTable(t)

	if _, err := repo.Query(context.Background(), "select nope from ragflow_t1"); err == nil {
		t.Error("Query() with unknown column expected error")
	}

	if _, err := repo.Query(context.Background(), "delete from ragflow_t1"); err == nil {
		t.Error("Query() with a write statement expected error")
	}

	// The pooled connection must be writable again afterwards
	err := repo.InsertRow(context.Background(), "t1", Document{ID: "d3", KBID: "kb1", Name: "x.csv"}, map[string]any{"name_kwd": "Linus"})
	if err != nil {
		t.Fatalf("InsertRow() after read-only query error = %v", err)
	}
	res, err := repo.Query(context.Background(), "select count(*) from ragflow_t1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Rows[0][0] != int64(4) {
		t.Errorf("count = %v, want 4", res.Rows[0][0])
	}
}

func TestTableRepo_DeleteRows(t *testing.T) {
	repo := seedTable(t)
	ctx := context.Background()

	if err := repo.DeleteRows(ctx, "t1", "d1"); err != nil {
		t.Fatalf("DeleteRows() error = %v", err)
	}
	res, err := repo.Query(ctx, "select name_kwd from ragflow_t1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0] != "Grace" {
		t.Errorf("rows after DeleteRows() = %v, want only Grace", res.Rows)
	}

	if err := repo.DeleteRows(ctx, "unknown", "d1"); err == nil {
		t.Error("DeleteRows() on a missing index expected error")
	}
}
