package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 30
)

// DialogLister lists the dialogs of a tenant.
type DialogLister interface {
	List(ctx context.Context, tenantID string, q service.ListQuery) ([]rag.Dialog, error)
}

// DialogsHandler handles HTTP requests for dialog listings.
type DialogsHandler struct {
	dialogs DialogLister
}

// NewDialogsHandler creates a new DialogsHandler.
func NewDialogsHandler(dialogs DialogLister) *DialogsHandler {
	return &DialogsHandler{dialogs: dialogs}
}

// DialogListResponse is a page of dialogs.
//
// swagger:model DialogListResponse
type DialogListResponse struct {
	Dialogs []rag.Dialog `json:"dialogs"`
}

// ServeHTTP handles HTTP requests for dialog listings.
//
// swagger:route GET /api/v1/dialogs listDialogs
//
// # List the dialogs of a tenant
//
// Query parameters: tenant_id (required), id, name, orderby (create_time,
// id or name; default create_time), desc (default true), page (default 1)
// and page_size (default 30).
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Matching dialogs
//	  schema:
//	    "$ref": "#/definitions/DialogListResponse"
//	'400':
//	  description: Missing tenant or invalid query parameter
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DialogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	q := service.ListQuery{
		ID:       query.Get("id"),
		Name:     query.Get("name"),
		OrderBy:  query.Get("orderby"),
		Desc:     true,
		Page:     defaultPage,
		PageSize: defaultPageSize,
	}
	if v := query.Get("desc"); v != "" {
		desc, err := strconv.ParseBool(v)
		if err != nil {
			handleServiceError(w, ctx, &service.ValidationError{Field: "desc", Message: "must be a boolean"}, "")
			return
		}
		q.Desc = desc
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"page_size", &q.PageSize}} {
		v := query.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			handleServiceError(w, ctx, &service.ValidationError{Field: p.name, Message: "must be an integer"}, "")
			return
		}
		*p.dst = n
	}

	dialogs, err := h.dialogs.List(ctx, query.Get("tenant_id"), q)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list dialogs")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(DialogListResponse{Dialogs: dialogs}); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
