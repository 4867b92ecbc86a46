package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/service"
)

// ChatHandler handles HTTP requests for dialog completions.
type ChatHandler struct {
	chatService service.ChatService
	renderer    AnswerRenderer
}

// NewChatHandler creates a new ChatHandler. renderer serves ?format=html
// and may be nil.
func NewChatHandler(chatService service.ChatService, renderer AnswerRenderer) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		renderer:    renderer,
	}
}

// CompletionRequest represents the HTTP request payload for a dialog completion.
//
// swagger:model CompletionRequest
type CompletionRequest struct {
	// Conversation so far; the last message must come from the user.
	Messages []llm.Message `json:"messages"`
	// Restricts retrieval to these documents.
	DocIDs []string `json:"doc_ids,omitempty"`
	// Values of the dialog's prompt parameters.
	Args map[string]string `json:"args,omitempty"`
	// Overrides the dialog's citation setting.
	Quote *bool `json:"quote,omitempty"`
	// Streams the answer as Server-Sent Events. Same as ?stream=true.
	Stream bool `json:"stream,omitempty"`
}

// ServeHTTP handles HTTP requests for dialog completions.
//
// swagger:route POST /api/v1/dialogs/{dialogID}/completions completion
//
// # Answer the last user message of a conversation
//
// Returns the answer envelope as JSON, or a stream of envelopes as
// Server-Sent Events with ?stream=true, terminated by "data: [DONE]".
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// - text/event-stream
// responses:
//
//	'200':
//	  description: Answer envelope
//	'400':
//	  description: Invalid request or missing prompt parameter
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'404':
//	  description: Unknown dialog
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	query := r.URL.Query()
	stream := req.Stream || query.Get("stream") == "true"
	var renderer AnswerRenderer
	if query.Get("format") == "html" {
		renderer = h.renderer
	}

	seq, err := h.chatService.Converse(ctx, service.ConverseRequest{
		DialogID: chi.URLParam(r, "dialogID"),
		Messages: req.Messages,
		DocIDs:   req.DocIDs,
		Args:     req.Args,
		Quote:    req.Quote,
		Stream:   stream,
	})
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process completion request")
		return
	}

	if stream {
		streamEnvelopes(ctx, w, seq, renderer, "Failed to process completion request")
		return
	}

	var final rag.Envelope
	for env, err := range seq {
		if err != nil {
			handleServiceError(w, ctx, err, "Failed to process completion request")
			return
		}
		final = env
	}
	if err := renderAnswer(&final, renderer); err != nil {
		logger.WarnContext(ctx, "failed to render answer", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(final); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
