package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// New opens a SQLite database connection at the given path.
// It enables foreign keys on every pooled connection and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS knowledge_bases (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			embd_id TEXT NOT NULL,
			parser_id TEXT NOT NULL DEFAULT 'naive',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS kb_fields (
			kb_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			label TEXT NOT NULL,
			PRIMARY KEY (kb_id, name),
			FOREIGN KEY (kb_id) REFERENCES knowledge_bases(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			kb_id TEXT NOT NULL,
			name TEXT NOT NULL,
			hash TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (kb_id) REFERENCES knowledge_bases(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			kb_id TEXT NOT NULL,
			content TEXT NOT NULL,
			content_ltks TEXT NOT NULL DEFAULT '',
			image_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'standard',
			FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_kb ON chunks(kb_id);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
