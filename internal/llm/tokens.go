package llm

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const defaultEncoding = "cl100k_base"

// TokenCounter counts and truncates text in model tokens.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TiktokenCounter counts tokens with a BPE encoding loaded from the embedded
// offline dictionary, so no network access is needed.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate returns the longest prefix of text that fits in maxTokens tokens.
func (c *TiktokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return c.enc.Decode(ids[:maxTokens])
}

// WordCounter approximates tokens as whitespace separated words, counting
// each CJK character as a word of its own.
type WordCounter struct{}

// Count returns the approximate number of tokens in text.
func (WordCounter) Count(text string) int {
	n := 0
	for _, field := range strings.Fields(text) {
		n += fieldTokens(field)
	}
	return n
}

// Truncate keeps whole words of text until maxTokens is reached.
func (WordCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	n := 0
	start := -1
	for i, r := range text {
		if !unicode.IsSpace(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n += fieldTokens(text[start:i])
			if n > maxTokens {
				return strings.TrimRightFunc(text[:start], unicode.IsSpace)
			}
			start = -1
		}
	}
	if start >= 0 && n+fieldTokens(text[start:]) > maxTokens {
		return strings.TrimRightFunc(text[:start], unicode.IsSpace)
	}
	return text
}

func fieldTokens(field string) int {
	cjk := 0
	other := false
	for _, r := range field {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
			continue
		}
		other = true
	}
	if other {
		return cjk + 1
	}
	return cjk
}

var (
	defaultCounter     TokenCounter
	defaultCounterOnce sync.Once
)

// DefaultCounter returns the process wide token counter. It falls back to
// WordCounter when the BPE encoding cannot be loaded.
func DefaultCounter() TokenCounter {
	defaultCounterOnce.Do(func() {
		c, err := NewTiktokenCounter()
		if err != nil {
			slog.Default().Warn("failed to load tiktoken encoding, using word counter", "error", err)
			defaultCounter = WordCounter{}
			return
		}
		defaultCounter = c
	})
	return defaultCounter
}
