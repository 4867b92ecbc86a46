package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/rag"
)

// ModelRegistry binds model names to clients. Deployments are single-tenant:
// every tenant shares the registered models.
type ModelRegistry struct {
	mu          sync.RWMutex
	defaultChat string
	chat        map[string]rag.ChatModel
	embedders   map[string]rag.Embedder
	rerankers   map[string]rag.Reranker
	speaker     rag.Speaker
}

// NewModelRegistry creates a registry whose default chat model is defaultChat.
func NewModelRegistry(defaultChat string) *ModelRegistry {
	return &ModelRegistry{
		defaultChat: defaultChat,
		chat:        make(map[string]rag.ChatModel),
		embedders:   make(map[string]rag.Embedder),
		rerankers:   make(map[string]rag.Reranker),
	}
}

// RegisterChat registers a chat model.
func (r *ModelRegistry) RegisterChat(name string, m rag.ChatModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = m
}

// RegisterEmbedder registers an embedding model.
func (r *ModelRegistry) RegisterEmbedder(name string, e rag.Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[name] = e
}

// RegisterReranker registers a rerank model.
func (r *ModelRegistry) RegisterReranker(name string, rr rag.Reranker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rerankers[name] = rr
}

// SetSpeaker sets the speech model.
func (r *ModelRegistry) SetSpeaker(s rag.Speaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaker = s
}

// ChatModel returns the chat model modelID, or the default one when modelID is empty.
func (r *ModelRegistry) ChatModel(ctx context.Context, tenantID, modelID string) (rag.ChatModel, error) {
	if modelID == "" {
		modelID = r.defaultChat
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(ctx, r.chat, "chat", tenantID, modelID)
}

// Embedder returns the embedding model modelID.
func (r *ModelRegistry) Embedder(ctx context.Context, tenantID, modelID string) (rag.Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(ctx, r.embedders, "embedding", tenantID, modelID)
}

// Reranker returns the rerank model modelID.
func (r *ModelRegistry) Reranker(ctx context.Context, tenantID, modelID string) (rag.Reranker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(ctx, r.rerankers, "rerank", tenantID, modelID)
}

// Speaker returns the speech model.
func (r *ModelRegistry) Speaker(_ context.Context, tenantID string) (rag.Speaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.speaker == nil {
		return nil, fmt.Errorf("%w: no speech model for tenant %q", ErrNotFound, tenantID)
	}
	return r.speaker, nil
}

// lookup finds id in models. Ids may carry a provider suffix ("name@provider")
// which is ignored when the full id is not registered.
func lookup[T any](ctx context.Context, models map[string]T, kind, tenantID, id string) (T, error) {
	if m, ok := models[id]; ok {
		return m, nil
	}
	if name, _, found := strings.Cut(id, "@"); found {
		if m, ok := models[name]; ok {
			return m, nil
		}
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "model not registered", "kind", kind, "model", id, "tenant_id", tenantID)
	var zero T
	return zero, fmt.Errorf("%w: %s model %q", ErrNotFound, kind, id)
}
