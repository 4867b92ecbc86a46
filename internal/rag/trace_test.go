package rag

import (
	"strings"
	"testing"
	"time"
)

func TestTrace_MarkIsImmutable(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := NewTrace(t0)
	marked := base.Mark(PhaseCheckLLM, t0.Add(5*time.Millisecond))

	finish := t0.Add(10 * time.Millisecond)
	if got := base.Render("", "q", finish); !strings.Contains(got, "  - Check LLM: 0.0ms") {
		t.Errorf("base trace changed by Mark: %q", got)
	}
	if got := marked.Render("", "q", finish); !strings.Contains(got, "  - Check LLM: 5.0ms") {
		t.Errorf("marked trace = %q, want Check LLM 5.0ms", got)
	}
}

func TestTrace_Render(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

	tr := NewTrace(t0).
		Mark(PhaseCheckLLM, at(10)).
		Mark(PhaseCreateRetriever, at(12)).
		Mark(PhaseBindEmbedding, at(20)).
		Mark(PhaseBindLLM, at(20)).
		Mark(PhaseTuneQuestion, at(21)).
		Mark(PhaseBindReranker, at(25)).
		Mark(PhaseRetrieval, at(60))

	got := tr.Render("system prompt\nline two", "what is go", at(100))

	for _, want := range []string{
		"system prompt  \nline two",
		"### Query:  \nwhat is go",
		" - Total: 100.0ms",
		"  - Check LLM: 10.0ms",
		"  - Create retriever: 2.0ms",
		"  - Bind embedding: 8.0ms",
		"  - Bind LLM: 0.0ms",
		"  - Tune question: 1.0ms",
		"  - Bind reranker: 4.0ms",
		"  - Generate keyword: 0.0ms",
		"  - Retrieval: 35.0ms",
		"  - Generate answer: 40.0ms",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q in %q", want, got)
		}
	}
	if strings.Contains(strings.ReplaceAll(got, "  \n", ""), "\n") {
		t.Errorf("Render() left a newline without a hard break: %q", got)
	}
}
