package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taurusduan/ragflow-plus/internal/handlers"
	"github.com/taurusduan/ragflow-plus/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	ChatService service.ChatService
	Dialogs     handlers.DialogLister
	// Renderer serves ?format=html. Nil disables it.
	Renderer       handlers.AnswerRenderer
	VectorStore    handlers.CollectionChecker
	DB             handlers.Pinger
	CollectionName string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	chatHandler := handlers.NewChatHandler(deps.ChatService, deps.Renderer)
	askHandler := handlers.NewAskHandler(deps.ChatService, deps.Renderer)
	dialogsHandler := handlers.NewDialogsHandler(deps.Dialogs)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.DB, deps.CollectionName)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodGet, "/dialogs", dialogsHandler)
			r.Method(http.MethodPost, "/dialogs/{dialogID}/completions", chatHandler)
			r.Method(http.MethodPost, "/ask", askHandler)
		})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}
