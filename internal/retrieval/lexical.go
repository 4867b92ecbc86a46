package retrieval

import (
	"context"
	"strings"
	"unicode"
)

const (
	lexicalLengthScale = 10.0
	maxLexicalScore    = 0.4
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// lexicalScore computes a density based lexical relevance score for a text
// relative to a query, clamped to [0, maxLexicalScore].
func lexicalScore(query, text string) float64 {
	queryTokens := filterStopwords(Tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}

	textTokens := Tokenize(text)
	if len(textTokens) == 0 {
		return 0
	}

	freq := make(map[string]int, len(textTokens))
	for _, token := range textTokens {
		freq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += freq[token]
	}

	score := (float64(rawMatches) / (1 + float64(len(textTokens)))) * lexicalLengthScale
	if score > maxLexicalScore {
		return maxLexicalScore
	}
	return score
}

// termSimilarity returns the share of distinct query tokens found in text.
func termSimilarity(query, text string) float64 {
	queryTokens := filterStopwords(Tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}
	textSet := make(map[string]struct{})
	for _, token := range Tokenize(text) {
		textSet[token] = struct{}{}
	}

	distinct := make(map[string]struct{}, len(queryTokens))
	var hits int
	for _, token := range queryTokens {
		if _, dup := distinct[token]; dup {
			continue
		}
		distinct[token] = struct{}{}
		if _, ok := textSet[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(distinct))
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit. Han, Hiragana and Katakana characters become single tokens.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana):
			builder.WriteRune(' ')
			builder.WriteRune(r)
			builder.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(r)
		default:
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// LexicalReranker is a Reranker based on keyword density. It needs no model.
type LexicalReranker struct{}

// Similarity returns the normalized lexical score of each text.
func (LexicalReranker) Similarity(_ context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = lexicalScore(query, text) / maxLexicalScore
	}
	return scores, nil
}
