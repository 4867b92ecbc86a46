package rag

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
)

var dialogValidate = validator.New()

// Dialog is the configuration of a chat assistant.
type Dialog struct {
	// ID identifies the dialog.
	ID string `json:"id" yaml:"id" validate:"required"`
	// TenantID owns the dialog and its model bindings.
	TenantID string `json:"tenant_id" yaml:"tenant_id" validate:"required"`
	// Name is a display name.
	Name string `json:"name" yaml:"name"`
	// LLMID names the chat model. Empty selects the tenant default.
	LLMID string `json:"llm_id" yaml:"llm_id"`
	// LLMSetting holds the generation parameters sent with every request.
	LLMSetting llm.ChatParams `json:"llm_setting" yaml:"llm_setting"`
	// KBIDs lists the attached knowledge bases. Empty means solo chat.
	KBIDs []string `json:"kb_ids" yaml:"kb_ids" validate:"dive,required"`
	// TopN is the number of chunks put into the prompt.
	TopN int `json:"top_n" yaml:"top_n" validate:"gte=0"`
	// TopK is the number of vector candidates considered before ranking.
	TopK int `json:"top_k" yaml:"top_k" validate:"gte=0"`
	// SimilarityThreshold drops chunks scoring below it.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	// VectorSimilarityWeight is the weight of vector similarity in hybrid scoring.
	VectorSimilarityWeight float64 `json:"vector_similarity_weight" yaml:"vector_similarity_weight" validate:"gte=0,lte=1"`
	// RerankID names an optional rerank model.
	RerankID string `json:"rerank_id" yaml:"rerank_id"`
	// Prompt holds the prompt template and its toggles.
	Prompt PromptConfig `json:"prompt_config" yaml:"prompt_config"`
}

// Validate checks the dialog fields.
func (d *Dialog) Validate() error {
	return dialogValidate.Struct(d)
}

// PromptConfig is the prompt template of a dialog.
type PromptConfig struct {
	// System is the system prompt template. "{key}" placeholders are filled
	// from the request arguments and "{knowledge}" from retrieval.
	System string `json:"system" yaml:"system"`
	// Parameters declares the template placeholders.
	Parameters []Parameter `json:"parameters" yaml:"parameters" validate:"dive"`
	// EmptyResponse is answered verbatim when retrieval finds nothing.
	EmptyResponse string `json:"empty_response" yaml:"empty_response"`
	// Quote enables citations. Nil means enabled.
	Quote *bool `json:"quote,omitempty" yaml:"quote,omitempty"`
	// Keyword enables keyword augmentation of the question.
	Keyword bool `json:"keyword" yaml:"keyword"`
	// TTS enables audio synthesis of the answer.
	TTS bool `json:"tts" yaml:"tts"`
}

// Quoting reports whether citations are enabled.
func (p PromptConfig) Quoting() bool {
	return p.Quote == nil || *p.Quote
}

// Declares reports whether the template declares parameter key.
func (p PromptConfig) Declares(key string) bool {
	return slices.ContainsFunc(p.Parameters, func(param Parameter) bool {
		return param.Key == key
	})
}

// Parameter is a named placeholder of a prompt template.
type Parameter struct {
	Key      string `json:"key" yaml:"key" validate:"required"`
	Optional bool   `json:"optional" yaml:"optional"`
}

// ChatOptions are the per-request inputs of a conversation turn.
type ChatOptions struct {
	// Stream selects incremental generation.
	Stream bool
	// DocIDs restricts retrieval to these documents.
	DocIDs []string
	// Args supplies template parameter values.
	Args map[string]string
	// Quote overrides citation for this request. Nil keeps the dialog setting.
	Quote *bool
}

// AskRequest is a single-turn question over knowledge bases.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question" validate:"required"`
	// KBIDs lists the knowledge bases to search.
	KBIDs []string `json:"kb_ids" validate:"required,min=1,dive,required"`
	// TenantID selects the tenant's default models.
	TenantID string `json:"tenant_id" validate:"required"`
}

// Validate checks the request fields.
func (r *AskRequest) Validate() error {
	return dialogValidate.Struct(r)
}

// Reference lists the knowledge behind an answer. Chunks never carry vectors.
type Reference struct {
	Total   int                `json:"total"`
	Chunks  []retrieval.Chunk  `json:"chunks"`
	DocAggs []retrieval.DocAgg `json:"doc_aggs"`
}

func emptyReference() *Reference {
	return &Reference{
		Chunks:  []retrieval.Chunk{},
		DocAggs: []retrieval.DocAgg{},
	}
}

// newReference copies kb into a reference without chunk vectors.
func newReference(kb retrieval.Result) *Reference {
	ref := &Reference{
		Total:   kb.Total,
		Chunks:  make([]retrieval.Chunk, len(kb.Chunks)),
		DocAggs: make([]retrieval.DocAgg, len(kb.DocAggs)),
	}
	copy(ref.DocAggs, kb.DocAggs)
	for i, ck := range kb.Chunks {
		ck.Vector = nil
		ref.Chunks[i] = ck
	}
	return ref
}

// Envelope is one unit of a pipeline's output. Streaming deltas carry a nil
// Reference, which is encoded as an empty object.
type Envelope struct {
	// Answer is the full answer produced so far.
	Answer string `json:"answer"`
	// Reference is set on the terminal envelope.
	Reference *Reference `json:"reference"`
	// Prompt is the prompt trace of the terminal envelope.
	Prompt string `json:"prompt,omitempty"`
	// AudioBinary is hex encoded speech for the newly released text.
	AudioBinary string `json:"audio_binary,omitempty"`
	// CreatedAt is when the envelope was produced.
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON encodes a nil Reference as {}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	out := struct {
		plain
		Reference any `json:"reference"`
	}{plain: plain(e)}
	if e.Reference == nil {
		out.Reference = struct{}{}
	} else {
		out.Reference = e.Reference
	}
	return json.Marshal(out)
}

// Fragment is a partial answer produced by a sub-pipeline.
type Fragment struct {
	Answer    string
	Reference *Reference
	Prompt    string
}
