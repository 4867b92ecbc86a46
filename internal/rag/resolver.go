package rag

import (
	"context"
	"slices"
	"strings"

	"github.com/taurusduan/ragflow-plus/internal/citation"
	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/observability"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
)

const (
	thinkClose = "</think>"

	credentialGuidance = " Please set LLM API-Key in 'User Setting -> Model providers -> API-Key'"
)

// Citation modes reported to metrics.
const (
	citedByModel  = "self_cited"
	citedByInsert = "inserted"
	citedNothing  = "none"
	citationsOff  = "disabled"
)

// ImageStore describes where chunk images are served from.
type ImageStore struct {
	VisitPoint string
	Secure     bool
}

// URL returns the address of image id.
func (s ImageStore) URL(id string) string {
	proto := "http"
	if s.Secure {
		proto = "https"
	}
	return proto + "://" + s.VisitPoint + "/" + id
}

// ResolveInput is a finished answer and the knowledge it was generated from.
type ResolveInput struct {
	Answer string
	// Knowledge is the retrieval result formatted into the prompt. An empty
	// result means the answer was generated without knowledge.
	Knowledge retrieval.Result
	Embedder  Embedder
	// TermWeight and VectorWeight blend lexical and vector similarity when
	// citations are inserted.
	TermWeight   float64
	VectorWeight float64
	// Quote enables citations.
	Quote bool
}

// Resolution is an answer with its citations resolved.
type Resolution struct {
	Answer    string
	Reference *Reference
	// Cited lists the chunk indices cited by Answer.
	Cited []int
}

// Resolver attaches citations and references to answers.
type Resolver struct {
	retriever Retriever
	images    ImageStore
	metrics   *observability.Metrics
}

// NewResolver creates a resolver inserting citations with retriever.
func NewResolver(retriever Retriever, images ImageStore, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		retriever: retriever,
		images:    images,
		metrics:   metrics,
	}
}

// Resolve rewrites the answer to carry citation markers and builds its
// reference. A leading reasoning segment ending in </think> is kept verbatim.
//
// Markers the model wrote itself are trusted; otherwise markers are inserted
// by similarity. Indices outside the chunk list stay in the text but are
// ignored. The reference lists the documents of cited chunks, or every
// retrieved document when nothing was cited.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	logger := contextutil.LoggerFromContext(ctx)

	think, answer := splitReasoning(in.Answer)
	chunks := in.Knowledge.Chunks

	res := Resolution{}
	switch {
	case len(chunks) == 0:
		res.Reference = emptyReference()
	case !in.Quote:
		res.Reference = newReference(in.Knowledge)
		r.metrics.Citation(citationsOff)
	default:
		if citation.Contains(answer) {
			res.Cited = citation.InRange(answer, len(chunks))
			r.metrics.Citation(citedByModel)
		} else {
			texts := make([]string, len(chunks))
			vectors := make([][]float32, len(chunks))
			for i, ck := range chunks {
				texts[i] = ck.ContentLtks
				if texts[i] == "" {
					texts[i] = ck.Content
				}
				vectors[i] = ck.Vector
			}
			annotated, cited, err := r.retriever.InsertCitations(ctx, answer, texts, vectors, in.Embedder, in.TermWeight, in.VectorWeight)
			if err != nil {
				logger.WarnContext(ctx, "failed to insert citations", "error", err)
			} else {
				answer = annotated
				res.Cited = inRange(cited, len(chunks))
			}
			if len(res.Cited) > 0 {
				r.metrics.Citation(citedByInsert)
			} else {
				r.metrics.Citation(citedNothing)
			}
		}

		answer = r.embedImages(answer, chunks)

		kb := in.Knowledge
		kb.DocAggs = citedDocs(in.Knowledge, res.Cited)
		res.Reference = newReference(kb)
	}

	lower := strings.ToLower(answer)
	if strings.Contains(lower, "invalid key") || strings.Contains(lower, "invalid api") {
		answer += credentialGuidance
	}

	res.Answer = think + answer
	logger.DebugContext(ctx, "answer resolved", "cited", res.Cited, "doc_aggs", len(res.Reference.DocAggs))
	return res, nil
}

// splitReasoning splits "reasoning</think>answer". Text without exactly one
// closing tag is all answer.
func splitReasoning(text string) (string, string) {
	if strings.Count(text, thinkClose) != 1 {
		return "", text
	}
	before, after, _ := strings.Cut(text, thinkClose)
	return before + thinkClose, after
}

// embedImages puts an image after each marker citing a chunk with an image.
// Every image URL is embedded once, after its first marker.
func (r *Resolver) embedImages(answer string, chunks []retrieval.Chunk) string {
	seen := make(map[string]struct{})
	return citation.ReplaceFunc(answer, func(i int, marker string) string {
		if i < 0 || i >= len(chunks) || chunks[i].ImageID == "" {
			return marker
		}
		url := r.images.URL(chunks[i].ImageID)
		if _, ok := seen[url]; ok {
			return marker
		}
		seen[url] = struct{}{}
		return marker + "\n\n" + `<img src="` + url + `" alt="` + url + `" style="max-width:800px;">`
	})
}

// citedDocs returns the doc aggregations of the cited chunks' documents,
// falling back to all of them when none matches.
func citedDocs(kb retrieval.Result, cited []int) []retrieval.DocAgg {
	ids := make(map[string]struct{}, len(cited))
	for _, i := range cited {
		ids[kb.Chunks[i].DocID] = struct{}{}
	}
	var docs []retrieval.DocAgg
	for _, d := range kb.DocAggs {
		if _, ok := ids[d.DocID]; ok {
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		return kb.DocAggs
	}
	return docs
}

// inRange returns the distinct indices of idx inside [0, n), sorted.
func inRange(idx []int, n int) []int {
	var out []int
	for _, i := range idx {
		if i >= 0 && i < n && !slices.Contains(out, i) {
			out = append(out, i)
		}
	}
	slices.Sort(out)
	return out
}
