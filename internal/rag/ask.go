package rag

import (
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/observability"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
	"github.com/taurusduan/ragflow-plus/internal/storage"
)

// Retrieval settings of the ask pipeline, tuned for recall.
const (
	askThreshold    = 0.01
	askVectorWeight = 0.3
	askTermWeight   = 0.7
	askTop          = 12
	askTemperature  = 0.1
)

const askSystemPrompt = `Role: You're a smart assistant.
Task: Summarize the information from the knowledge bases and answer the user's question.
Requirements and restrictions:
  - DO NOT make things up, especially for numbers.
  - If the information from the knowledge bases is irrelevant to the user's question, JUST SAY: Sorry, no relevant information provided.
  - Answer with markdown format text.
  - Answer in the language of the user's question.
  - DO NOT make things up, especially for numbers.

### Information from the knowledge bases
%s

The above is information from the knowledge bases.
`

// Asker answers single questions over knowledge bases.
type Asker struct {
	models    ModelProvider
	kbs       KnowledgeBaseStore
	retriever Retriever
	graph     Retriever
	resolver  *Resolver
	counter   llm.TokenCounter
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewAsker creates an ask pipeline. graph serves knowledge bases that are
// all knowledge graphs.
func NewAsker(
	models ModelProvider,
	kbs KnowledgeBaseStore,
	retriever Retriever,
	graph Retriever,
	resolver *Resolver,
	counter llm.TokenCounter,
	metrics *observability.Metrics,
) *Asker {
	return &Asker{
		models:    models,
		kbs:       kbs,
		retriever: retriever,
		graph:     graph,
		resolver:  resolver,
		counter:   counter,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Ask streams the answer to req.Question. Envelopes carry the answer so far
// with a nil reference; the last one carries the cited answer and its
// reference.
func (a *Asker) Ask(ctx context.Context, req AskRequest) iter.Seq2[Envelope, error] {
	return func(yield func(Envelope, error) bool) {
		ctx, span := tracer.Start(ctx, "rag.ask", trace.WithAttributes(
			attribute.Int("ask.kb_count", len(req.KBIDs)),
		))
		defer span.End()

		outcome := outcomeOK
		defer func() {
			a.metrics.Request(observability.PipelineAsk, outcome)
		}()

		if err := a.ask(ctx, req, yield); err != nil {
			outcome = outcomeError
			span.RecordError(err)
			yield(Envelope{}, err)
		}
	}
}

func (a *Asker) ask(ctx context.Context, req AskRequest, yield func(Envelope, error) bool) error {
	logger := contextutil.LoggerFromContext(ctx)

	kbs, err := a.kbs.GetByIDs(ctx, req.KBIDs)
	if err != nil {
		return err
	}
	if len(kbs) == 0 {
		return ErrNoKnowledgeBase
	}

	retriever := a.retriever
	graph := !slices.ContainsFunc(kbs, func(kb storage.KnowledgeBase) bool {
		return kb.ParserID != storage.ParserKnowledgeGraph
	})
	if graph && a.graph != nil {
		retriever = a.graph
	}

	embedder, err := a.models.Embedder(ctx, req.TenantID, kbs[0].EmbeddingModel)
	if err != nil {
		return lookupError("embedding", kbs[0].EmbeddingModel, err)
	}
	model, err := a.models.ChatModel(ctx, req.TenantID, "")
	if err != nil {
		return lookupError("chat", "", err)
	}
	maxTokens := model.MaxTokens()
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var tenantIDs []string
	for _, kb := range kbs {
		if !slices.Contains(tenantIDs, kb.TenantID) {
			tenantIDs = append(tenantIDs, kb.TenantID)
		}
	}

	start := time.Now()
	kb, err := retriever.Retrieval(ctx, retrieval.Request{
		Question:     req.Question,
		Embedder:     embedder,
		TenantIDs:    tenantIDs,
		KBIDs:        req.KBIDs,
		Page:         1,
		PageSize:     askTop,
		Threshold:    askThreshold,
		VectorWeight: askVectorWeight,
	})
	a.metrics.Stage("retrieval", time.Since(start))
	if err != nil {
		return err
	}
	knowledge := knowledgeBlocks(ctx, kb, maxTokens, a.counter)
	logger.DebugContext(ctx, "ask knowledge retrieved", "graph", graph, "chunks", len(kb.Chunks))
	if len(knowledge) == 0 {
		kb = retrieval.Result{}
	}

	system := strings.Replace(askSystemPrompt, "%s", strings.Join(knowledge, "\n"), 1)
	msgs := []llm.Message{{Role: llm.RoleUser, Content: req.Question}}

	genStart := time.Now()
	defer func() {
		a.metrics.Stage("generation", time.Since(genStart))
	}()

	throttle := NewThrottle(a.counter)
	answer := ""
	for snapshot, err := range model.ChatStream(ctx, system, msgs, llm.ChatParams{}.WithTemperature(askTemperature)) {
		if err != nil {
			return err
		}
		answer = snapshot
		if _, ok := throttle.Offer(snapshot); !ok {
			continue
		}
		a.metrics.Delta(observability.PipelineAsk)
		if !yield(Envelope{Answer: answer, CreatedAt: a.now()}, nil) {
			return nil
		}
	}
	if _, ok := throttle.Flush(answer); ok {
		a.metrics.Delta(observability.PipelineAsk)
		if !yield(Envelope{Answer: answer, CreatedAt: a.now()}, nil) {
			return nil
		}
	}

	res, err := a.resolver.Resolve(ctx, ResolveInput{
		Answer:       answer,
		Knowledge:    kb,
		Embedder:     embedder,
		TermWeight:   askTermWeight,
		VectorWeight: askVectorWeight,
		Quote:        true,
	})
	if err != nil {
		return err
	}
	yield(Envelope{Answer: res.Answer, Reference: res.Reference, CreatedAt: a.now()}, nil)
	return nil
}
