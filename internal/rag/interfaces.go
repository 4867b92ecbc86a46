package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_rag.go -package=mocks github.com/taurusduan/ragflow-plus/internal/rag ModelProvider,KnowledgeBaseStore,Retriever

import (
	"context"
	"iter"

	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
	"github.com/taurusduan/ragflow-plus/internal/storage"
)

// ChatModel generates answers.
type ChatModel interface {
	// Chat returns the full reply.
	Chat(ctx context.Context, system string, messages []llm.Message, params llm.ChatParams) (string, error)
	// ChatStream yields cumulative snapshots: each value is the whole answer
	// so far, not a delta. Breaking out of the loop stops generation.
	ChatStream(ctx context.Context, system string, messages []llm.Message, params llm.ChatParams) iter.Seq2[string, error]
	// MaxTokens is the model's context window.
	MaxTokens() int
}

// Speaker synthesizes speech. Breaking out of the loop stops synthesis.
type Speaker interface {
	Speak(ctx context.Context, text string) iter.Seq2[[]byte, error]
}

// Embedder produces embedding vectors.
type Embedder = retrieval.Embedder

// Reranker scores texts against a query.
type Reranker = retrieval.Reranker

// ModelProvider binds model identifiers to model clients.
type ModelProvider interface {
	// ChatModel returns the chat model modelID. Empty selects the tenant default.
	ChatModel(ctx context.Context, tenantID, modelID string) (ChatModel, error)
	Embedder(ctx context.Context, tenantID, modelID string) (Embedder, error)
	Reranker(ctx context.Context, tenantID, modelID string) (Reranker, error)
	// Speaker returns the tenant's speech model.
	Speaker(ctx context.Context, tenantID string) (Speaker, error)
}

// KnowledgeBaseStore looks up knowledge base metadata.
type KnowledgeBaseStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]storage.KnowledgeBase, error)
	// FieldMap returns the tabular schema of the knowledge bases, empty when
	// none of them is tabular.
	FieldMap(ctx context.Context, kbIDs []string) ([]storage.Field, error)
}

// Retriever finds knowledge chunks and places citations.
type Retriever interface {
	Retrieval(ctx context.Context, req retrieval.Request) (retrieval.Result, error)
	// InsertCitations annotates answer with markers pointing at the chunks
	// it resembles and returns the cited chunk indices.
	InsertCitations(ctx context.Context, answer string, texts []string, vectors [][]float32, embedder retrieval.Embedder, tkWeight, vtWeight float64) (string, []int, error)
	// SQLRetrieval runs a read-only query over a tabular index.
	SQLRetrieval(ctx context.Context, query string) (retrieval.TableResult, error)
}
