package rag

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/taurusduan/ragflow-plus/internal/retrieval"
)

func TestEnvelope_MarshalJSON(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	delta, err := json.Marshal(Envelope{Answer: "Hel", CreatedAt: at})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(delta), `"reference":{}`) {
		t.Errorf("delta envelope = %s, want an empty reference object", delta)
	}
	if strings.Contains(string(delta), "audio_binary") {
		t.Errorf("delta envelope = %s, want no audio", delta)
	}

	final, err := json.Marshal(Envelope{Answer: "Hello", Reference: emptyReference(), Prompt: "p", CreatedAt: at})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{`"answer":"Hello"`, `"chunks":[]`, `"doc_aggs":[]`, `"prompt":"p"`, `"created_at":"2024-01-01T00:00:00Z"`} {
		if !strings.Contains(string(final), want) {
			t.Errorf("final envelope = %s, want %s", final, want)
		}
	}
}

func TestNewReference_StripsVectors(t *testing.T) {
	kb := retrieval.Result{
		Total:  1,
		Chunks: []retrieval.Chunk{{ChunkID: "c1", Vector: []float32{1, 2}}},
	}
	ref := newReference(kb)
	if ref.Chunks[0].Vector != nil {
		t.Error("newReference() kept the vector")
	}
	if kb.Chunks[0].Vector == nil {
		t.Error("newReference() modified its input")
	}
	again := newReference(retrieval.Result{Chunks: ref.Chunks})
	if again.Chunks[0].Vector != nil || again.Chunks[0].ChunkID != "c1" {
		t.Errorf("newReference() is not idempotent: %+v", again.Chunks[0])
	}

	data, err := json.Marshal(ref)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), `"vector"`) {
		t.Errorf("reference JSON = %s, want no vector field", data)
	}
}

func TestDialog_Validate(t *testing.T) {
	valid := func() Dialog {
		return Dialog{
			ID:                     "d1",
			TenantID:               "t1",
			KBIDs:                  []string{"kb1"},
			SimilarityThreshold:    0.2,
			VectorSimilarityWeight: 0.3,
			Prompt: PromptConfig{
				System:     "Use {knowledge}",
				Parameters: []Parameter{{Key: "knowledge"}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(d *Dialog)
		wantErr bool
	}{
		{"valid", func(*Dialog) {}, false},
		{"solo", func(d *Dialog) { d.KBIDs = nil }, false},
		{"missing id", func(d *Dialog) { d.ID = "" }, true},
		{"missing tenant", func(d *Dialog) { d.TenantID = "" }, true},
		{"weight above one", func(d *Dialog) { d.VectorSimilarityWeight = 1.5 }, true},
		{"negative top n", func(d *Dialog) { d.TopN = -1 }, true},
		{"empty kb id", func(d *Dialog) { d.KBIDs = []string{""} }, true},
		{"parameter without key", func(d *Dialog) { d.Prompt.Parameters = append(d.Prompt.Parameters, Parameter{}) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(&d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPromptConfig(t *testing.T) {
	off := false
	cfg := PromptConfig{Parameters: []Parameter{{Key: "knowledge"}}}
	if !cfg.Quoting() {
		t.Error("Quoting() = false, want true by default")
	}
	if !cfg.Declares("knowledge") || cfg.Declares("name") {
		t.Error("Declares() mismatch")
	}
	cfg.Quote = &off
	if cfg.Quoting() {
		t.Error("Quoting() = true, want false")
	}
}

func TestAskRequest_Validate(t *testing.T) {
	ok := AskRequest{Question: "q", KBIDs: []string{"kb1"}, TenantID: "t1"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	for _, bad := range []AskRequest{
		{KBIDs: []string{"kb1"}, TenantID: "t1"},
		{Question: "q", TenantID: "t1"},
		{Question: "q", KBIDs: []string{"kb1"}},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", bad)
		}
	}
}
