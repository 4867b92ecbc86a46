package rag

import (
	"fmt"
	"strings"
	"time"
)

// Phase is a step of the conversation pipeline whose end time is traced.
type Phase string

// Phases in pipeline order.
const (
	PhaseCheckLLM        Phase = "Check LLM"
	PhaseCreateRetriever Phase = "Create retriever"
	PhaseBindEmbedding   Phase = "Bind embedding"
	PhaseBindLLM         Phase = "Bind LLM"
	PhaseTuneQuestion    Phase = "Tune question"
	PhaseBindReranker    Phase = "Bind reranker"
	PhaseGenerateKeyword Phase = "Generate keyword"
	PhaseRetrieval       Phase = "Retrieval"
)

var phaseOrder = []Phase{
	PhaseCheckLLM,
	PhaseCreateRetriever,
	PhaseBindEmbedding,
	PhaseBindLLM,
	PhaseTuneQuestion,
	PhaseBindReranker,
	PhaseGenerateKeyword,
	PhaseRetrieval,
}

// Trace records when each phase of a request finished. It is a value: Mark
// returns a new trace and never changes the receiver.
type Trace struct {
	start time.Time
	marks map[Phase]time.Time
}

// NewTrace starts a trace at start.
func NewTrace(start time.Time) Trace {
	return Trace{start: start}
}

// Mark returns a copy of t with phase finished at at.
func (t Trace) Mark(phase Phase, at time.Time) Trace {
	marks := make(map[Phase]time.Time, len(t.marks)+1)
	for p, ts := range t.marks {
		marks[p] = ts
	}
	marks[phase] = at
	return Trace{start: t.start, marks: marks}
}

// end returns when phase finished. An unmarked phase took no time.
func (t Trace) end(i int) time.Time {
	for ; i >= 0; i-- {
		if ts, ok := t.marks[phaseOrder[i]]; ok {
			return ts
		}
	}
	return t.start
}

// Render appends the query and the phase timings to prompt and converts
// newlines to markdown hard breaks.
func (t Trace) Render(prompt, query string, finish time.Time) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n### Query:\n")
	b.WriteString(query)
	fmt.Fprintf(&b, "\n\n - Total: %.1fms", ms(finish.Sub(t.start)))
	for i, p := range phaseOrder {
		fmt.Fprintf(&b, "\n  - %s: %.1fms", p, ms(t.end(i).Sub(t.end(i-1))))
	}
	fmt.Fprintf(&b, "\n  - Generate answer: %.1fms", ms(finish.Sub(t.end(len(phaseOrder)-1))))
	return strings.ReplaceAll(b.String(), "\n", "  \n")
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
