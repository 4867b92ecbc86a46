package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// Columns every tabular index carries next to its field columns.
const (
	ColumnDocID   = "doc_id"
	ColumnDocName = "docnm_kwd"
	ColumnKBID    = "kb_id"
)

// TableResult is the result set of a tabular query.
type TableResult struct {
	Columns []string
	Rows    [][]any
}

// IndexName returns the name of the tabular index of a tenant.
// The name is lowercase so it survives lowercased generated SQL.
func IndexName(tenantID string) string {
	var b strings.Builder
	b.WriteString("ragflow_")
	for _, r := range strings.ToLower(tenantID) {
		if r == '_' || unicode.IsDigit(r) || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// TableRepo stores tabular rows per tenant and runs read-only queries over them.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo creates a new TableRepo.
func NewTableRepo(db *sql.DB) *TableRepo {
	return &TableRepo{db: db}
}

// EnsureTable creates the tenant's tabular index if it does not exist and
// adds any missing field columns.
func (r *TableRepo) EnsureTable(ctx context.Context, tenantID string, fields []string) error {
	table := IndexName(tenantID)
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s TEXT NOT NULL,
		%s TEXT NOT NULL,
		%s TEXT NOT NULL
	)`, quoteIdent(table), ColumnDocID, ColumnDocName, ColumnKBID)
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	existing, err := r.columns(ctx, table)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if _, ok := existing[strings.ToLower(f)]; ok {
			continue
		}
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), quoteIdent(f))); err != nil {
			return fmt.Errorf("failed to add column %s: %w", f, err)
		}
		existing[strings.ToLower(f)] = struct{}{}
	}
	return nil
}

func (r *TableRepo) columns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols[strings.ToLower(name)] = struct{}{}
	}
	return cols, rows.Err()
}

// InsertRow inserts one row into the tenant's tabular index. values holds
// field columns; the document columns come from doc.
func (r *TableRepo) InsertRow(ctx context.Context, tenantID string, doc Document, values map[string]any) error {
	cols := []string{ColumnDocID, ColumnDocName, ColumnKBID}
	args := []any{doc.ID, doc.Name, doc.KBID}
	for k, v := range values {
		cols = append(cols, quoteIdent(k))
		args = append(args, v)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(IndexName(tenantID)), strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	return nil
}

// DeleteRows removes the rows of a document from the tenant's tabular index.
func (r *TableRepo) DeleteRows(ctx context.Context, tenantID, docID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(IndexName(tenantID)), ColumnDocID)
	if _, err := r.db.ExecContext(ctx, stmt, docID); err != nil {
		return fmt.Errorf("failed to delete rows of %s: %w", docID, err)
	}
	return nil
}

// Query runs a single SELECT statement on a read-only connection.
// Statement errors are returned as is so they can be shown to the model
// that wrote the query.
func (r *TableRepo) Query(ctx context.Context, query string) (TableResult, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return TableResult{}, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return TableResult{}, fmt.Errorf("failed to enable query_only: %w", err)
	}
	defer func() {
		// The connection returns to the pool, so it must be writable again.
		_, _ = conn.ExecContext(context.Background(), "PRAGMA query_only = OFF")
	}()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return TableResult{}, err
	}
	defer func() {
		_ = rows.Close()
	}()

	cols, err := rows.Columns()
	if err != nil {
		return TableResult{}, err
	}

	result := TableResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return TableResult{}, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return TableResult{}, err
	}

	return result, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
