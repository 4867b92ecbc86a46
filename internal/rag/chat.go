package rag

import (
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/observability"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
)

var tracer = otel.Tracer("ragflow.rag")

// Number of recent user turns the grounding question is derived from.
const questionTurns = 3

// Pipeline outcomes reported to metrics.
const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomeEmpty       = "empty"
	outcomeTabular     = "tabular"
	outcomeConfigError = "config_error"
)

// Conversation answers multi-turn chats, grounded in the knowledge bases of
// the dialog when it has any.
type Conversation struct {
	models    ModelProvider
	kbs       KnowledgeBaseStore
	retriever Retriever
	resolver  *Resolver
	tabular   *SQLFallback
	counter   llm.TokenCounter
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewConversation creates a conversation pipeline.
func NewConversation(
	models ModelProvider,
	kbs KnowledgeBaseStore,
	retriever Retriever,
	resolver *Resolver,
	counter llm.TokenCounter,
	metrics *observability.Metrics,
) *Conversation {
	return &Conversation{
		models:    models,
		kbs:       kbs,
		retriever: retriever,
		resolver:  resolver,
		tabular:   NewSQLFallback(retriever, metrics),
		counter:   counter,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Chat answers the last user message of messages.
//
// Every envelope but the last carries a nil reference. With Stream set the
// answer is released as it grows, throttled to deltas of MinDeltaTokens
// tokens; the last envelope holds the resolved answer and its reference.
// Breaking out of the loop stops generation. Missing prompt parameters and
// unresolvable models end the sequence with an error before any model is
// called, while knowledge bases with different embedding models produce a
// single explanatory envelope.
func (c *Conversation) Chat(ctx context.Context, dialog Dialog, messages []llm.Message, opts ChatOptions) iter.Seq2[Envelope, error] {
	return func(yield func(Envelope, error) bool) {
		ctx, span := tracer.Start(ctx, "rag.chat", trace.WithAttributes(
			attribute.String("dialog.id", dialog.ID),
			attribute.Int("dialog.kb_count", len(dialog.KBIDs)),
			attribute.Bool("stream", opts.Stream),
		))
		defer span.End()

		pipeline := observability.PipelineChat
		if len(dialog.KBIDs) == 0 {
			pipeline = observability.PipelineSolo
		}

		outcome := outcomeOK
		fail := func(err error) {
			outcome = outcomeError
			span.RecordError(err)
			yield(Envelope{}, err)
		}
		defer func() {
			c.metrics.Request(pipeline, outcome)
		}()

		if len(messages) == 0 || messages[len(messages)-1].Role != llm.RoleUser {
			fail(ErrNotUserTurn)
			return
		}

		if pipeline == observability.PipelineSolo {
			if err := c.chatSolo(ctx, dialog, messages, opts.Stream, yield); err != nil {
				fail(err)
			}
			return
		}

		var err error
		outcome, err = c.chatGrounded(ctx, dialog, messages, opts, yield)
		if err != nil {
			fail(err)
		}
	}
}

// chatSolo chats without knowledge. It returns the error ending the sequence.
func (c *Conversation) chatSolo(ctx context.Context, dialog Dialog, messages []llm.Message, stream bool, yield func(Envelope, error) bool) error {
	model, err := c.models.ChatModel(ctx, dialog.TenantID, dialog.LLMID)
	if err != nil {
		return lookupError("chat", dialog.LLMID, err)
	}
	speaker := c.speaker(ctx, dialog)
	msgs := history(messages)
	system := dialog.Prompt.System

	if !stream {
		answer, err := model.Chat(ctx, system, msgs, dialog.LLMSetting)
		if err != nil {
			return err
		}
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "solo chat answered", "user", msgs[len(msgs)-1].Content, "answer", answer)
		yield(Envelope{
			Answer:      answer,
			AudioBinary: synthesize(ctx, speaker, answer, c.metrics),
			CreatedAt:   c.now(),
		}, nil)
		return nil
	}

	throttle := NewThrottle(c.counter)
	answer := ""
	for snapshot, err := range model.ChatStream(ctx, system, msgs, dialog.LLMSetting) {
		if err != nil {
			return err
		}
		answer = snapshot
		delta, ok := throttle.Offer(snapshot)
		if !ok {
			continue
		}
		c.metrics.Delta(observability.PipelineSolo)
		if !yield(Envelope{Answer: answer, AudioBinary: synthesize(ctx, speaker, delta, c.metrics), CreatedAt: c.now()}, nil) {
			return nil
		}
	}
	if delta, ok := throttle.Flush(answer); ok {
		c.metrics.Delta(observability.PipelineSolo)
		yield(Envelope{Answer: answer, AudioBinary: synthesize(ctx, speaker, delta, c.metrics), CreatedAt: c.now()}, nil)
	}
	return nil
}

// chatGrounded chats over the dialog's knowledge bases. It returns the
// outcome for metrics and the error ending the sequence.
func (c *Conversation) chatGrounded(ctx context.Context, dialog Dialog, messages []llm.Message, opts ChatOptions, yield func(Envelope, error) bool) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)
	tr := NewTrace(c.now())

	model, err := c.models.ChatModel(ctx, dialog.TenantID, dialog.LLMID)
	if err != nil {
		return outcomeError, lookupError("chat", dialog.LLMID, err)
	}
	maxTokens := model.MaxTokens()
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	tr = tr.Mark(PhaseCheckLLM, c.now())

	kbs, err := c.kbs.GetByIDs(ctx, dialog.KBIDs)
	if err != nil {
		return outcomeError, err
	}
	var embeddingModels, tenantIDs []string
	for _, kb := range kbs {
		if !slices.Contains(embeddingModels, kb.EmbeddingModel) {
			embeddingModels = append(embeddingModels, kb.EmbeddingModel)
		}
		if !slices.Contains(tenantIDs, kb.TenantID) {
			tenantIDs = append(tenantIDs, kb.TenantID)
		}
	}
	if len(embeddingModels) != 1 {
		logger.WarnContext(ctx, "knowledge bases use different embedding models", "models", embeddingModels, "kb_ids", dialog.KBIDs)
		yield(Envelope{Answer: MixedEmbeddingsAnswer, Reference: emptyReference(), CreatedAt: c.now()}, nil)
		return outcomeConfigError, nil
	}

	questions := recentQuestions(messages, questionTurns)
	tr = tr.Mark(PhaseCreateRetriever, c.now())

	embedder, err := c.models.Embedder(ctx, dialog.TenantID, embeddingModels[0])
	if err != nil {
		return outcomeError, lookupError("embedding", embeddingModels[0], err)
	}
	tr = tr.Mark(PhaseBindEmbedding, c.now())
	tr = tr.Mark(PhaseBindLLM, c.now())

	system, err := bindParameters(dialog.Prompt, opts.Args)
	if err != nil {
		return outcomeError, err
	}
	speaker := c.speaker(ctx, dialog)

	fields, err := c.kbs.FieldMap(ctx, dialog.KBIDs)
	if err != nil {
		logger.WarnContext(ctx, "failed to load field map", "error", err)
	}
	if len(fields) > 0 {
		logger.DebugContext(ctx, "trying tabular answer", "question", questions[len(questions)-1])
		frag := c.tabular.TryTabularAnswer(ctx, TabularRequest{
			Question: questions[len(questions)-1],
			Fields:   fields,
			TenantID: dialog.TenantID,
			Model:    model,
		})
		if frag != nil {
			yield(Envelope{Answer: frag.Answer, Reference: frag.Reference, Prompt: frag.Prompt, CreatedAt: c.now()}, nil)
			return outcomeTabular, nil
		}
	}

	questions = questions[len(questions)-1:]
	tr = tr.Mark(PhaseTuneQuestion, c.now())

	var reranker Reranker
	if dialog.RerankID != "" {
		reranker, err = c.models.Reranker(ctx, dialog.TenantID, dialog.RerankID)
		if err != nil {
			return outcomeError, lookupError("rerank", dialog.RerankID, err)
		}
	}
	tr = tr.Mark(PhaseBindReranker, c.now())

	var kb retrieval.Result
	var knowledge []string
	if dialog.Prompt.Declares("knowledge") {
		if dialog.Prompt.Keyword {
			if kw := extractKeywords(ctx, model, questions[0], 3); kw != "" {
				questions[0] += " " + kw
			}
			tr = tr.Mark(PhaseGenerateKeyword, c.now())
		}

		start := time.Now()
		kb, err = c.retriever.Retrieval(ctx, retrieval.Request{
			Question:     strings.Join(questions, " "),
			Embedder:     embedder,
			TenantIDs:    tenantIDs,
			KBIDs:        dialog.KBIDs,
			DocIDs:       opts.DocIDs,
			Page:         1,
			PageSize:     dialog.TopN,
			Top:          dialog.TopK,
			Threshold:    dialog.SimilarityThreshold,
			VectorWeight: dialog.VectorSimilarityWeight,
			Reranker:     reranker,
		})
		c.metrics.Stage("retrieval", time.Since(start))
		if err != nil {
			return outcomeError, err
		}
		knowledge = knowledgeBlocks(ctx, kb, maxTokens, c.counter)
	}
	query := strings.Join(questions, " ")
	logger.DebugContext(ctx, "knowledge retrieved", "query", query, "chunks", len(kb.Chunks), "blocks", len(knowledge))
	tr = tr.Mark(PhaseRetrieval, c.now())

	if len(knowledge) == 0 && dialog.Prompt.EmptyResponse != "" {
		empty := dialog.Prompt.EmptyResponse
		yield(Envelope{
			Answer:      empty,
			Reference:   newReference(kb),
			Prompt:      "\n\n### Query:\n" + query,
			AudioBinary: synthesize(ctx, speaker, empty, c.metrics),
			CreatedAt:   c.now(),
		}, nil)
		return outcomeEmpty, nil
	}
	if len(knowledge) == 0 {
		kb = retrieval.Result{}
	}

	args := make(map[string]string, len(opts.Args)+1)
	for k, v := range opts.Args {
		args[k] = v
	}
	args["knowledge"] = joinKnowledge(knowledge)

	quote := dialog.Prompt.Quoting() && (opts.Quote == nil || *opts.Quote)
	hint := ""
	if len(knowledge) > 0 && quote {
		hint = citationInstruction
	}

	msgs := append([]llm.Message{{Role: llm.RoleSystem, Content: fillTemplate(system, args)}}, history(messages)...)
	used, msgs := fitMessages(msgs, int(float64(maxTokens)*messageShare), c.counter)
	if len(msgs) < 2 {
		return outcomeError, ErrInconsistentPrompt
	}
	prompt := msgs[0].Content

	params := dialog.LLMSetting
	if params.MaxTokens != nil {
		params = params.WithMaxTokens(min(*params.MaxTokens, maxTokens-used))
	}

	finish := func(answer string) (Envelope, error) {
		res, err := c.resolver.Resolve(ctx, ResolveInput{
			Answer:       answer,
			Knowledge:    kb,
			Embedder:     embedder,
			TermWeight:   1 - dialog.VectorSimilarityWeight,
			VectorWeight: dialog.VectorSimilarityWeight,
			Quote:        quote,
		})
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{
			Answer:    res.Answer,
			Reference: res.Reference,
			Prompt:    tr.Render(prompt, query, c.now()),
			CreatedAt: c.now(),
		}, nil
	}

	genStart := time.Now()
	defer func() {
		c.metrics.Stage("generation", time.Since(genStart))
	}()

	if !opts.Stream {
		answer, err := model.Chat(ctx, prompt+hint, msgs[1:], params)
		if err != nil {
			return outcomeError, err
		}
		logger.DebugContext(ctx, "chat answered", "user", msgs[len(msgs)-1].Content, "answer", answer)
		env, err := finish(answer)
		if err != nil {
			return outcomeError, err
		}
		env.AudioBinary = synthesize(ctx, speaker, answer, c.metrics)
		yield(env, nil)
		return outcomeOK, nil
	}

	throttle := NewThrottle(c.counter)
	answer := ""
	for snapshot, err := range model.ChatStream(ctx, prompt+hint, msgs[1:], params) {
		if err != nil {
			return outcomeError, err
		}
		answer = snapshot
		delta, ok := throttle.Offer(snapshot)
		if !ok {
			continue
		}
		c.metrics.Delta(observability.PipelineChat)
		if !yield(Envelope{Answer: answer, AudioBinary: synthesize(ctx, speaker, delta, c.metrics), CreatedAt: c.now()}, nil) {
			return outcomeOK, nil
		}
	}
	if delta, ok := throttle.Flush(answer); ok {
		c.metrics.Delta(observability.PipelineChat)
		if !yield(Envelope{Answer: answer, AudioBinary: synthesize(ctx, speaker, delta, c.metrics), CreatedAt: c.now()}, nil) {
			return outcomeOK, nil
		}
	}

	env, err := finish(answer)
	if err != nil {
		return outcomeError, err
	}
	yield(env, nil)
	return outcomeOK, nil
}

// speaker returns the dialog's speech model, or nil when speech is off or
// unavailable.
func (c *Conversation) speaker(ctx context.Context, dialog Dialog) Speaker {
	if !dialog.Prompt.TTS {
		return nil
	}
	sp, err := c.models.Speaker(ctx, dialog.TenantID)
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "speech model unavailable", "error", err)
		return nil
	}
	return sp
}
