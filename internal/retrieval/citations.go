package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/taurusduan/ragflow-plus/internal/citation"
	"github.com/taurusduan/ragflow-plus/internal/contextutil"
)

const (
	citationStartThreshold = 0.63
	citationMinThreshold   = 0.3
	citationThresholdStep  = 0.05
	citationMaxPerPiece    = 4
	citationMinPieceRunes  = 5
)

var codeFence = regexp.MustCompile("(?s)```.*?```")

// InsertCitations appends citation markers to the sentences of answer that
// are similar enough to a chunk. Similarity blends term overlap and vector
// cosine: tkWeight*term + vtWeight*cosine. texts and vectors describe the
// chunks by position. It returns the annotated answer and the sorted
// distinct indices of the cited chunks.
func (s *Service) InsertCitations(ctx context.Context, answer string, texts []string, vectors [][]float32, embedder Embedder, tkWeight, vtWeight float64) (string, []int, error) {
	if len(texts) != len(vectors) {
		return answer, nil, fmt.Errorf("got %d chunk texts and %d vectors", len(texts), len(vectors))
	}
	if len(texts) == 0 || strings.TrimSpace(answer) == "" {
		return answer, nil, nil
	}

	ctx, span := tracer.Start(ctx, "retrieval.InsertCitations")
	defer span.End()

	pieces := splitPieces(answer)
	var candidates []int
	var inputs []string
	for i, p := range pieces {
		if strings.HasPrefix(p, "```") {
			continue
		}
		trimmed := strings.TrimSpace(p)
		if utf8.RuneCountInString(trimmed) < citationMinPieceRunes {
			continue
		}
		candidates = append(candidates, i)
		inputs = append(inputs, trimmed)
	}
	if len(candidates) == 0 {
		return answer, nil, nil
	}

	embeddings, err := embedder.EmbedTexts(ctx, inputs)
	if err != nil {
		span.RecordError(err)
		return answer, nil, fmt.Errorf("failed to embed answer: %w", err)
	}
	if len(embeddings) != len(inputs) {
		return answer, nil, fmt.Errorf("expected %d answer embeddings, got %d", len(inputs), len(embeddings))
	}

	sims := make([][]float64, len(candidates))
	for k, input := range inputs {
		row := make([]float64, len(texts))
		for j := range texts {
			row[j] = tkWeight*termSimilarity(input, texts[j]) + vtWeight*cosine(embeddings[k], vectors[j])
		}
		sims[k] = row
	}

	cites := make(map[int][]int)
	for thr := citationStartThreshold; thr > citationMinThreshold && len(cites) == 0; thr -= citationThresholdStep {
		for k, row := range sims {
			best := slices.Max(row) * 0.99
			if best < thr {
				continue
			}
			var hits []int
			for j, v := range row {
				if v >= best {
					hits = append(hits, j)
				}
			}
			slices.SortStableFunc(hits, func(a, b int) int {
				return cmp.Compare(row[b], row[a])
			})
			if len(hits) > citationMaxPerPiece {
				hits = hits[:citationMaxPerPiece]
			}
			cites[candidates[k]] = hits
		}
	}

	var b strings.Builder
	seen := make(map[int]struct{})
	var cited []int
	for i, p := range pieces {
		hits := cites[i]
		if len(hits) == 0 {
			b.WriteString(p)
			continue
		}
		slices.Sort(hits)
		b.WriteString(placeMarkers(p, hits))
		for _, j := range hits {
			if _, ok := seen[j]; !ok {
				seen[j] = struct{}{}
				cited = append(cited, j)
			}
		}
	}
	slices.Sort(cited)

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "citations inserted", "pieces", len(pieces), "cited", len(cited))
	return b.String(), cited, nil
}

// placeMarkers appends markers to piece before its trailing whitespace and
// sentence punctuation.
func placeMarkers(piece string, indices []int) string {
	body := strings.TrimRightFunc(piece, unicode.IsSpace)
	tail := piece[len(body):]

	punct := ""
	if r, size := utf8.DecodeLastRuneInString(body); size > 0 && isSentenceEnd(r) {
		punct = body[len(body)-size:]
		body = body[:len(body)-size]
	}
	return citation.Append(body, indices...) + punct + tail
}

func isSentenceEnd(r rune) bool {
	return strings.ContainsRune(".?!;。？！；", r)
}

// splitPieces splits text into sentences whose concatenation is text.
// Fenced code blocks are kept whole, and a newline after a table cell
// delimiter does not end a piece.
func splitPieces(text string) []string {
	var pieces []string
	last := 0
	for _, loc := range codeFence.FindAllStringIndex(text, -1) {
		pieces = append(pieces, splitSentences(text[last:loc[0]])...)
		pieces = append(pieces, text[loc[0]:loc[1]])
		last = loc[1]
	}
	return append(pieces, splitSentences(text[last:])...)
}

func splitSentences(text string) []string {
	if text == "" {
		return nil
	}

	var pieces []string
	start := 0
	var prev rune
	for i, r := range text {
		end := i + utf8.RuneLen(r)
		cut := false
		switch r {
		case '\n':
			cut = prev != '|'
		case '。', '？', '！', '；', '!':
			cut = true
		case '.', '?', ';':
			next, _ := utf8.DecodeRuneInString(text[end:])
			cut = (unicode.IsLetter(prev) || unicode.IsDigit(prev)) && (end == len(text) || next == ' ' || next == '\n')
		}
		if cut {
			pieces = append(pieces, text[start:end])
			start = end
		}
		prev = r
	}
	if start < len(text) {
		pieces = append(pieces, text[start:])
	}
	return pieces
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
