package retrieval

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestSplitPieces(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"sentences", "One fact. Two facts! Done", []string{"One fact.", " Two facts!", " Done"}},
		{"abbreviation kept", "Version 1.2 is out.", []string{"Version 1.2 is out."}},
		{"cjk", "巴黎是首都。里昂很大！", []string{"巴黎是首都。", "里昂很大！"}},
		{"table rows kept", "|a|b|\n|c|d|\nAfter.", []string{"|a|b|\n|c|d|\nAfter."}},
		{"code fence whole", "Run it.\n```go\nx := 1. y\n```\nEnd.", []string{"Run it.", "\n", "```go\nx := 1. y\n```", "\n", "End."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitPieces(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("splitPieces(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if strings.Join(got, "") != tt.input {
				t.Errorf("splitPieces(%q) does not concatenate back to the input", tt.input)
			}
		})
	}
}

func TestPlaceMarkers(t *testing.T) {
	tests := []struct {
		piece    string
		indices  []int
		expected string
	}{
		{"Paris is the capital.", []int{0}, "Paris is the capital ##0$$."},
		{"No punctuation", []int{1, 2}, "No punctuation ##1$$ ##2$$"},
		{" Trailing space!\n", []int{3}, " Trailing space ##3$$!\n"},
		{"巴黎是首都。", []int{0}, "巴黎是首都 ##0$$。"},
	}

	for _, tt := range tests {
		if got := placeMarkers(tt.piece, tt.indices); got != tt.expected {
			t.Errorf("placeMarkers(%q, %v) = %q, want %q", tt.piece, tt.indices, got, tt.expected)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		a, b     []float32
		expected float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 1}, []float32{-1, -1}, -1},
		{[]float32{1}, []float32{1, 2}, 0},
		{nil, nil, 0},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		if got := cosine(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestService_InsertCitations(t *testing.T) {
	svc := NewService(nil, nil, nil, "chunks")
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"Paris is the capital of France.": {1, 0},
			"Croissants are delicious.":       {0, 1},
		},
		def: []float32{0.5, 0.5},
	}
	texts := []string{"Paris is the capital of France", "Croissants are pastries", "Unrelated text"}
	vectors := [][]float32{{1, 0}, {0, 1}, {-1, 0}}

	answer := "Paris is the capital of France. Croissants are delicious. Ok."
	got, cited, err := svc.InsertCitations(context.Background(), answer, texts, vectors, embedder, 0.3, 0.7)
	if err != nil {
		t.Fatalf("InsertCitations() error = %v", err)
	}

	want := "Paris is the capital of France ##0$$. Croissants are delicious ##1$$. Ok."
	if got != want {
		t.Errorf("InsertCitations() = %q, want %q", got, want)
	}
	if !reflect.DeepEqual(cited, []int{0, 1}) {
		t.Errorf("InsertCitations() cited = %v, want [0 1]", cited)
	}
}

func TestService_InsertCitations_LowersThreshold(t *testing.T) {
	svc := NewService(nil, nil, nil, "chunks")
	// cosine 0.6 is below the starting threshold but above the floor
	embedder := &fakeEmbedder{def: []float32{0.6, 0.8}}
	got, cited, err := svc.InsertCitations(context.Background(), "A loosely related sentence.", []string{"zzz"}, [][]float32{{1, 0}}, embedder, 0, 1)
	if err != nil {
		t.Fatalf("InsertCitations() error = %v", err)
	}
	if !reflect.DeepEqual(cited, []int{0}) {
		t.Errorf("cited = %v, want [0]", cited)
	}
	if got != "A loosely related sentence ##0$$." {
		t.Errorf("InsertCitations() = %q", got)
	}
}

func TestService_InsertCitations_NothingSimilar(t *testing.T) {
	svc := NewService(nil, nil, nil, "chunks")
	embedder := &fakeEmbedder{def: []float32{0, 1}}
	answer := "Completely different content here."
	got, cited, err := svc.InsertCitations(context.Background(), answer, []string{"zzz"}, [][]float32{{1, 0}}, embedder, 0.3, 0.7)
	if err != nil {
		t.Fatalf("InsertCitations() error = %v", err)
	}
	if got != answer || len(cited) != 0 {
		t.Errorf("InsertCitations() = %q, %v, want unchanged answer and no citations", got, cited)
	}
}

func TestService_InsertCitations_EdgeCases(t *testing.T) {
	svc := NewService(nil, nil, nil, "chunks")
	embedder := &fakeEmbedder{def: []float32{1}}

	if _, _, err := svc.InsertCitations(context.Background(), "text", []string{"a"}, nil, embedder, 0.3, 0.7); err == nil {
		t.Error("InsertCitations() with mismatched vectors expected error")
	}

	got, cited, err := svc.InsertCitations(context.Background(), "Ok.", []string{"a"}, [][]float32{{1}}, embedder, 0.3, 0.7)
	if err != nil || got != "Ok." || cited != nil {
		t.Errorf("InsertCitations(short) = %q, %v, %v, want unchanged", got, cited, err)
	}

	got, cited, err = svc.InsertCitations(context.Background(), "Some answer.", nil, nil, embedder, 0.3, 0.7)
	if err != nil || got != "Some answer." || cited != nil {
		t.Errorf("InsertCitations(no chunks) = %q, %v, %v, want unchanged", got, cited, err)
	}
}
