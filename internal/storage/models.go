package storage

import "time"

// Parser identifiers stored on a knowledge base.
const (
	ParserNaive          = "naive"
	ParserTable          = "table"
	ParserKnowledgeGraph = "knowledge_graph"
)

// Chunk kinds.
const (
	KindStandard = "standard"
	KindGraph    = "graph"
)

// KnowledgeBase is a named collection of documents indexed with one embedding model.
type KnowledgeBase struct {
	ID             string
	TenantID       string
	Name           string
	EmbeddingModel string // Identifier of the embedding model used at index time
	ParserID       string // naive, table or knowledge_graph
	CreatedAt      time.Time
}

// Field maps a tabular index column to its display label.
type Field struct {
	Name  string
	Label string
}

// Document is a source document inside a knowledge base.
type Document struct {
	ID   string
	KBID string
	Name string
	Hash string // SHA256 of the ingested content, empty until ingestion completes
}

// ChunkRecord is the text of an indexed chunk. Its ID is the Qdrant point ID.
type ChunkRecord struct {
	ID          string
	DocID       string
	KBID        string
	Content     string
	ContentLtks string // Tokenized content used for lexical scoring
	ImageID     string
	Kind        string
	DocName     string // Populated on reads from documents.name
}
