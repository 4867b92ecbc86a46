package rag_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
)

// fakeModel replays scripted replies and records what it was asked.
type fakeModel struct {
	replies   []string // Chat replies, in call order
	snapshots []string // ChatStream snapshots
	streamErr error    // yielded after the snapshots
	maxTokens int

	systems []string
	params  []llm.ChatParams
	chats   int
	streams int
	stopped bool
}

func (m *fakeModel) Chat(_ context.Context, system string, _ []llm.Message, params llm.ChatParams) (string, error) {
	m.systems = append(m.systems, system)
	m.params = append(m.params, params)
	m.chats++
	if m.chats > len(m.replies) {
		return "", errors.New("no reply scripted")
	}
	return m.replies[m.chats-1], nil
}

func (m *fakeModel) ChatStream(_ context.Context, system string, _ []llm.Message, params llm.ChatParams) iter.Seq2[string, error] {
	m.systems = append(m.systems, system)
	m.params = append(m.params, params)
	m.streams++
	return func(yield func(string, error) bool) {
		for _, s := range m.snapshots {
			if !yield(s, nil) {
				m.stopped = true
				return
			}
		}
		if m.streamErr != nil {
			yield("", m.streamErr)
		}
	}
}

func (m *fakeModel) MaxTokens() int {
	return m.maxTokens
}

// echoSpeaker "speaks" the text as its own bytes.
type echoSpeaker struct{}

func (echoSpeaker) Speak(_ context.Context, text string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		yield([]byte(text), nil)
	}
}

type fakeEmbedder struct {
	name string
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (e *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, nil
}

type fakeReranker struct{}

func (fakeReranker) Similarity(_ context.Context, _ string, texts []string) ([]float64, error) {
	return make([]float64, len(texts)), nil
}

// cumulative returns the snapshots of an answer growing one word at a time.
func cumulative(n int) []string {
	words := make([]string, 0, n)
	snaps := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		words = append(words, fmt.Sprintf("w%d", i))
		snaps = append(snaps, strings.Join(words, " "))
	}
	return snaps
}

func knowledge() retrieval.Result {
	return retrieval.Result{
		Total: 1,
		Chunks: []retrieval.Chunk{{
			ChunkID:     "c0",
			Content:     "Paris is the capital of France.",
			ContentLtks: "paris capital france",
			DocID:       "d1",
			DocName:     "geo.pdf",
			KBID:        "kb1",
			Vector:      []float32{1, 0},
		}},
		DocAggs: []retrieval.DocAgg{{DocID: "d1", DocName: "geo.pdf", Count: 1}},
	}
}

func collect(seq iter.Seq2[rag.Envelope, error]) ([]rag.Envelope, error) {
	var envs []rag.Envelope
	for env, err := range seq {
		if err != nil {
			return envs, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}
