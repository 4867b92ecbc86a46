package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
	"github.com/taurusduan/ragflow-plus/internal/service"
	"github.com/taurusduan/ragflow-plus/internal/service/mocks"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// envelopes yields envs and then err, if any.
func envelopes(err error, envs ...rag.Envelope) iter.Seq2[rag.Envelope, error] {
	return func(yield func(rag.Envelope, error) bool) {
		for _, env := range envs {
			if !yield(env, nil) {
				return
			}
		}
		if err != nil {
			yield(rag.Envelope{}, err)
		}
	}
}

// upperRenderer "renders" answers by upper-casing them.
type upperRenderer struct{}

func (upperRenderer) Render(answer string) (string, error) {
	return strings.ToUpper(answer), nil
}

func completionRouter(h *ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/api/v1/dialogs/{dialogID}/completions", h)
	r.Method(http.MethodGet, "/api/v1/dialogs/{dialogID}/completions", h)
	return r
}

func postJSON(t *testing.T, h http.Handler, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// sseFrames returns the data payloads of an event stream.
func sseFrames(body string) []string {
	var frames []string
	for _, block := range strings.Split(body, "\n\n") {
		if data, ok := strings.CutPrefix(block, "data: "); ok {
			frames = append(frames, data)
		}
	}
	return frames
}

func finalEnvelope() rag.Envelope {
	return rag.Envelope{
		Answer:    "Paris ##0$$",
		Reference: &rag.Reference{Total: 1, DocAggs: []retrieval.DocAgg{}},
	}
}

func TestChatHandler_Complete(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockChatService := mocks.NewMockChatService(ctrl)
	h := NewChatHandler(mockChatService, upperRenderer{})

	msgs := []llm.Message{{Role: llm.RoleUser, Content: "Capital?"}}
	mockChatService.EXPECT().
		Converse(gomock.Any(), service.ConverseRequest{DialogID: "support", Messages: msgs, Args: map[string]string{"lang": "en"}}).
		Return(envelopes(nil, finalEnvelope()), nil)

	w := postJSON(t, completionRouter(h), "/api/v1/dialogs/support/completions",
		CompletionRequest{Messages: msgs, Args: map[string]string{"lang": "en"}})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		Answer    string          `json:"answer"`
		Reference json.RawMessage `json:"reference"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Paris ##0$$" {
		t.Errorf("answer = %q, want the unrendered answer", resp.Answer)
	}
	if !strings.Contains(string(resp.Reference), `"total":1`) {
		t.Errorf("reference = %s", resp.Reference)
	}
}

func TestChatHandler_CompleteHTML(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockChatService := mocks.NewMockChatService(ctrl)
	h := NewChatHandler(mockChatService, upperRenderer{})

	mockChatService.EXPECT().Converse(gomock.Any(), gomock.Any()).Return(envelopes(nil, finalEnvelope()), nil)

	w := postJSON(t, completionRouter(h), "/api/v1/dialogs/support/completions?format=html",
		CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "Capital?"}}})

	var env map[string]any
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env["answer"] != "PARIS ##0$$" {
		t.Errorf("answer = %v, want rendered answer", env["answer"])
	}
}

func TestChatHandler_Stream(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       CompletionRequest
		seq        iter.Seq2[rag.Envelope, error]
		wantFrames []string
	}{
		{
			name:   "query parameter",
			target: "/api/v1/dialogs/support/completions?stream=true",
			seq:    envelopes(nil, rag.Envelope{Answer: "Par"}, finalEnvelope()),
			wantFrames: []string{
				`"reference":{}`,
				`"answer":"Paris ##0$$"`,
				"[DONE]",
			},
		},
		{
			name:       "body flag",
			target:     "/api/v1/dialogs/support/completions",
			body:       CompletionRequest{Stream: true},
			seq:        envelopes(nil, finalEnvelope()),
			wantFrames: []string{`"answer":"Paris ##0$$"`, "[DONE]"},
		},
		{
			name:   "pipeline error",
			target: "/api/v1/dialogs/support/completions?stream=true",
			seq:    envelopes(service.ErrExternalService, rag.Envelope{Answer: "Par"}),
			wantFrames: []string{
				`"answer":"Par"`,
				`{"error":"External service error"}`,
				"[DONE]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockChatService := mocks.NewMockChatService(ctrl)
			h := NewChatHandler(mockChatService, nil)

			mockChatService.EXPECT().
				Converse(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ any, req service.ConverseRequest) (iter.Seq2[rag.Envelope, error], error) {
					if !req.Stream || req.DialogID != "support" {
						t.Errorf("ConverseRequest = %+v, want streaming for dialog support", req)
					}
					return tt.seq, nil
				})

			w := postJSON(t, completionRouter(h), tt.target, tt.body)

			if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
				t.Errorf("Content-Type = %q, want text/event-stream", ct)
			}
			frames := sseFrames(w.Body.String())
			if len(frames) != len(tt.wantFrames) {
				t.Fatalf("frames = %q, want %d frames", frames, len(tt.wantFrames))
			}
			for i, want := range tt.wantFrames {
				if !strings.Contains(frames[i], want) {
					t.Errorf("frame %d = %q, want it to contain %q", i, frames[i], want)
				}
			}
		})
	}
}

func TestChatHandler_StreamEarlyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"missing parameter", &rag.MissingParameterError{Key: "name"}, http.StatusBadRequest, "name"},
		{"model lookup", &rag.LookupError{Kind: "chat", Model: "gpt"}, http.StatusInternalServerError, "gpt"},
		{"unknown knowledge base", service.ErrNotFound, http.StatusNotFound, "Resource not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockChatService := mocks.NewMockChatService(ctrl)
			h := NewChatHandler(mockChatService, nil)

			mockChatService.EXPECT().Converse(gomock.Any(), gomock.Any()).Return(envelopes(tt.err), nil)

			w := postJSON(t, completionRouter(h), "/api/v1/dialogs/support/completions?stream=true",
				CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}})

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if !strings.Contains(resp.Error, tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", resp.Error, tt.wantMsg)
			}
		})
	}
}

func TestChatHandler_StreamEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockChatService := mocks.NewMockChatService(ctrl)
	h := NewChatHandler(mockChatService, nil)

	mockChatService.EXPECT().Converse(gomock.Any(), gomock.Any()).Return(envelopes(nil), nil)

	w := postJSON(t, completionRouter(h), "/api/v1/dialogs/support/completions?stream=true",
		CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}})

	if frames := sseFrames(w.Body.String()); len(frames) != 1 || frames[0] != "[DONE]" {
		t.Errorf("frames = %q, want only [DONE]", frames)
	}
}

func TestChatHandler_Errors(t *testing.T) {
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}

	tests := []struct {
		name       string
		method     string
		body       any
		convErr    error
		streamErr  error
		wantStatus int
	}{
		{name: "method not allowed", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "invalid JSON body", method: http.MethodPost, body: "invalid json", wantStatus: http.StatusBadRequest},
		{
			name:       "validation error",
			method:     http.MethodPost,
			body:       CompletionRequest{Messages: msgs},
			convErr:    &service.ValidationError{Field: "messages", Message: "required"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown dialog",
			method:     http.MethodPost,
			body:       CompletionRequest{Messages: msgs},
			convErr:    service.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing parameter",
			method:     http.MethodPost,
			body:       CompletionRequest{Messages: msgs},
			streamErr:  &rag.MissingParameterError{Key: "name"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "model lookup",
			method:     http.MethodPost,
			body:       CompletionRequest{Messages: msgs},
			streamErr:  &rag.LookupError{Kind: "chat", Model: "gpt"},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "upstream failure",
			method:     http.MethodPost,
			body:       CompletionRequest{Messages: msgs},
			streamErr:  service.ErrExternalService,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unclassified",
			method:     http.MethodPost,
			body:       CompletionRequest{Messages: msgs},
			streamErr:  errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockChatService := mocks.NewMockChatService(ctrl)
			h := NewChatHandler(mockChatService, nil)

			if tt.convErr != nil {
				mockChatService.EXPECT().Converse(gomock.Any(), gomock.Any()).Return(nil, tt.convErr)
			}
			if tt.streamErr != nil {
				mockChatService.EXPECT().Converse(gomock.Any(), gomock.Any()).Return(envelopes(tt.streamErr), nil)
			}

			var w *httptest.ResponseRecorder
			if tt.method == http.MethodPost {
				w = postJSON(t, completionRouter(h), "/api/v1/dialogs/support/completions", tt.body)
			} else {
				w = httptest.NewRecorder()
				completionRouter(h).ServeHTTP(w, httptest.NewRequest(tt.method, "/api/v1/dialogs/support/completions", nil))
			}

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusMethodNotAllowed {
				var resp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
					t.Errorf("error body = %q, want an error message", w.Body.String())
				}
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "Test error")

	if w.Code != http.StatusBadRequest {
		t.Errorf("writeError() status = %v, want %v", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("writeError() Content-Type = %v, want application/json", ct)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("writeError() response decode error = %v", err)
	}
	if resp.Error != "Test error" {
		t.Errorf("writeError() error = %v, want Test error", resp.Error)
	}
}
