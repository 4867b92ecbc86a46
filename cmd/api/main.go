package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taurusduan/ragflow-plus/internal/config"
	"github.com/taurusduan/ragflow-plus/internal/http"
	"github.com/taurusduan/ragflow-plus/internal/knowledge"
	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/markdown"
	"github.com/taurusduan/ragflow-plus/internal/observability"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
	"github.com/taurusduan/ragflow-plus/internal/service"
	"github.com/taurusduan/ragflow-plus/internal/storage"
	"github.com/taurusduan/ragflow-plus/internal/vectorstore"
)

// General API information
//
// This API answers questions over knowledge bases with cited, optionally streamed answers.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: ragflow-plus API
//   description: |
//     Dialog completions and one-shot questions grounded in knowledge bases.
//     Answers carry citation markers and a reference to the chunks they cite.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json
//   - text/event-stream

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	kbRepo := storage.NewKnowledgeBaseRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	tableRepo := storage.NewTableRepo(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	defer func() {
		_ = vectorStore.Close()
	}()

	// Ensure collection exists with correct vector size
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	models := service.NewModelRegistry(cfg.LLMModelName)
	models.RegisterChat(cfg.LLMModelName, llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.LLMMaxTokens))
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	models.RegisterEmbedder(embedder.ModelName(), embedder)
	models.RegisterReranker("lexical", retrieval.LexicalReranker{})
	if cfg.TTSModelName != "" {
		models.SetSpeaker(llm.NewSpeechClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.TTSModelName, cfg.TTSVoice))
		slog.Info("Speech synthesis enabled", "model", cfg.TTSModelName)
	}
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName, "max_tokens", cfg.LLMMaxTokens)

	dialogs, err := service.LoadDialogs(cfg.DialogsPath)
	if err != nil {
		log.Fatalf("Failed to load dialogs: %v", err)
	}
	slog.Info("Dialogs loaded", "path", cfg.DialogsPath, "dialogs", dialogs.IDs())

	if cfg.KnowledgePath != "" {
		manifest, err := knowledge.LoadManifest(cfg.KnowledgePath)
		if err != nil {
			log.Fatalf("Failed to load knowledge manifest: %v", err)
		}
		loader := knowledge.NewLoader(kbRepo, chunkRepo, tableRepo, vectorStore, models, cfg.QdrantCollection)
		go func() {
			slog.Info("Starting background knowledge load", "path", cfg.KnowledgePath)
			stats, err := loader.Load(ctx, manifest)
			if err != nil {
				slog.Error("Knowledge load failed", "error", err)
				return
			}
			slog.Info("Knowledge load finished", "documents", stats.Documents, "skipped", stats.Skipped)
		}()
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	counter := llm.DefaultCounter()

	retriever := retrieval.NewService(vectorStore, chunkRepo, tableRepo, cfg.QdrantCollection)
	resolver := rag.NewResolver(retriever, rag.ImageStore{
		VisitPoint: cfg.StorageVisitPoint,
		Secure:     cfg.StorageSecure,
	}, metrics)
	conversation := rag.NewConversation(models, kbRepo, retriever, resolver, counter, metrics)
	asker := rag.NewAsker(models, kbRepo, retriever, retriever.Graph(), resolver, counter, metrics)
	chatService := service.NewChatService(dialogs, conversation, asker)
	slog.Info("RAG pipelines initialized")

	router := http.NewRouter(&http.Deps{
		ChatService:    chatService,
		Dialogs:        dialogs,
		Renderer:       markdown.NewRenderer(),
		VectorStore:    vectorStore,
		DB:             db,
		CollectionName: cfg.QdrantCollection,
		Metrics:        promhttp.Handler(),
	})

	// Streams stay open while answers are generated, so only header reads
	// are bounded.
	srv := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
}
