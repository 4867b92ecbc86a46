package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/service"
)

// AskHandler handles HTTP requests for single questions over knowledge bases.
type AskHandler struct {
	chatService service.ChatService
	renderer    AnswerRenderer
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(chatService service.ChatService, renderer AnswerRenderer) *AskHandler {
	return &AskHandler{
		chatService: chatService,
		renderer:    renderer,
	}
}

// AskRequest represents the HTTP request payload for a question.
//
// swagger:model AskRequest
type AskRequest struct {
	Question string   `json:"question"`
	KBIDs    []string `json:"kb_ids"`
	TenantID string   `json:"tenant_id"`
}

// ServeHTTP handles HTTP requests for questions.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question over knowledge bases
//
// Streams envelopes as Server-Sent Events. The last envelope carries the
// cited answer and its reference.
//
// ---
// consumes:
// - application/json
// produces:
// - text/event-stream
// responses:
//
//	'200':
//	  description: Stream of answer envelopes
//	'400':
//	  description: Invalid request
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	seq, err := h.chatService.Ask(ctx, rag.AskRequest{
		Question: req.Question,
		KBIDs:    req.KBIDs,
		TenantID: req.TenantID,
	})
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process ask request")
		return
	}

	var renderer AnswerRenderer
	if r.URL.Query().Get("format") == "html" {
		renderer = h.renderer
	}
	streamEnvelopes(ctx, w, seq, renderer, "Failed to process ask request")
}
