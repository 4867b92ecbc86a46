package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatResponse(content, reasoning string) map[string]any {
	msg := map[string]any{"role": "assistant", "content": content}
	if reasoning != "" {
		msg["reasoning_content"] = reasoning
	}
	return map[string]any{
		"id":     "test-id",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": msg, "finish_reason": "stop"},
		},
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8081", "test-key", "test-model", 8192)
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.BaseURL != "http://localhost:8081" {
		t.Errorf("NewClient() BaseURL = %v, want http://localhost:8081", client.BaseURL)
	}
	if client.Model != "test-model" {
		t.Errorf("NewClient() Model = %v, want test-model", client.Model)
	}
	if client.MaxTokens() != 8192 {
		t.Errorf("MaxTokens() = %d, want 8192", client.MaxTokens())
	}
	if client.client == nil {
		t.Error("NewClient() client should not be nil")
	}
}

func TestClient_Chat(t *testing.T) {
	tests := []struct {
		name       string
		serverResp func(w http.ResponseWriter, r *http.Request)
		wantReply  string
		wantErr    bool
	}{
		{
			name: "successful chat",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/v1/chat/completions" {
					t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
				}
				if !strings.Contains(r.Header.Get("Authorization"), "Bearer") {
					t.Error("missing Authorization header")
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(chatResponse("Hi there!", ""))
			},
			wantReply: "Hi there!",
		},
		{
			name: "reasoning wrapped in think tags",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(chatResponse("Answer", "pondering"))
			},
			wantReply: "<think>pondering</think>Answer",
		},
		{
			name: "no choices returned",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "test-id", "choices": []any{}})
			},
			wantErr: true,
		},
		{
			name: "server error",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer server.Close()

			client := NewClient(server.URL, "test-key", "test-model", 4096)
			reply, err := client.Chat(context.Background(), "be brief", []Message{{Role: RoleUser, Content: "Hello"}}, ChatParams{})

			if (err != nil) != tt.wantErr {
				t.Errorf("Chat() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && reply != tt.wantReply {
				t.Errorf("Chat() reply = %q, want %q", reply, tt.wantReply)
			}
		})
	}
}

func TestClient_Chat_SendsParams(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("ok", ""))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", "test-model", 4096)
	params := ChatParams{}.WithTemperature(0.5).WithMaxTokens(128)
	if _, err := client.Chat(context.Background(), "system prompt", []Message{{Role: RoleUser, Content: "q"}}, params); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got["model"] != "test-model" {
		t.Errorf("model = %v, want test-model", got["model"])
	}
	if got["temperature"] != 0.5 {
		t.Errorf("temperature = %v, want 0.5", got["temperature"])
	}
	if got["max_tokens"] != float64(128) {
		t.Errorf("max_tokens = %v, want 128", got["max_tokens"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages length = %d, want 2", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "system prompt" {
		t.Errorf("first message = %v, want system prompt", first)
	}
}

func streamServer(t *testing.T, deltas []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			chunk := map[string]any{
				"id":      "s",
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": d}},
			}
			data, _ := json.Marshal(chunk)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestClient_ChatStream(t *testing.T) {
	server := streamServer(t, []map[string]any{
		{"content": "Hel"},
		{"content": "lo"},
		{"content": " world"},
	})
	defer server.Close()

	client := NewClient(server.URL, "k", "m", 4096)
	var snapshots []string
	for snap, err := range client.ChatStream(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}}, ChatParams{}) {
		if err != nil {
			t.Fatalf("ChatStream() error = %v", err)
		}
		snapshots = append(snapshots, snap)
	}

	want := []string{"Hel", "Hello", "Hello world"}
	if len(snapshots) != len(want) {
		t.Fatalf("ChatStream() snapshots = %q, want %q", snapshots, want)
	}
	for i := range want {
		if snapshots[i] != want[i] {
			t.Errorf("snapshot[%d] = %q, want %q", i, snapshots[i], want[i])
		}
	}
}

func TestClient_ChatStream_Reasoning(t *testing.T) {
	server := streamServer(t, []map[string]any{
		{"reasoning_content": "let me"},
		{"reasoning_content": " think"},
		{"content": "Done"},
	})
	defer server.Close()

	client := NewClient(server.URL, "k", "m", 4096)
	var last string
	for snap, err := range client.ChatStream(context.Background(), "", nil, ChatParams{}) {
		if err != nil {
			t.Fatalf("ChatStream() error = %v", err)
		}
		last = snap
	}
	if want := "<think>let me think</think>Done"; last != want {
		t.Errorf("final snapshot = %q, want %q", last, want)
	}
}

func TestClient_ChatStream_StopEarly(t *testing.T) {
	server := streamServer(t, []map[string]any{
		{"content": "a"},
		{"content": "b"},
		{"content": "c"},
	})
	defer server.Close()

	client := NewClient(server.URL, "k", "m", 4096)
	count := 0
	for _, err := range client.ChatStream(context.Background(), "", nil, ChatParams{}) {
		if err != nil {
			t.Fatalf("ChatStream() error = %v", err)
		}
		count++
		break
	}
	if count != 1 {
		t.Errorf("iterations = %d, want 1", count)
	}
}

func TestClient_ChatStream_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"down"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", "m", 4096)
	var gotErr error
	for _, err := range client.ChatStream(context.Background(), "", nil, ChatParams{}) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Error("ChatStream() expected error, got nil")
	}
}
