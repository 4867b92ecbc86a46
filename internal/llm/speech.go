package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const speechChunkSize = 32 * 1024

// SpeechClient synthesizes audio through an OpenAI-compatible speech API.
type SpeechClient struct {
	BaseURL string
	Model   string
	Voice   string
	client  *openai.Client
}

// NewSpeechClient creates a new text-to-speech client.
func NewSpeechClient(baseURL, apiKey, model, voice string) *SpeechClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &SpeechClient{
		BaseURL: baseURL,
		Model:   model,
		Voice:   voice,
		client:  openai.NewClientWithConfig(cfg),
	}
}

// Speak synthesizes text and yields the mp3 audio in chunks.
func (c *SpeechClient) Speak(ctx context.Context, text string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(c.Model),
			Input:          text,
			Voice:          openai.SpeechVoice(c.Voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			yield(nil, fmt.Errorf("failed to send request: %w", err))
			return
		}
		defer func() {
			_ = resp.Close()
		}()

		buf := make([]byte, speechChunkSize)
		for {
			n, err := resp.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("failed to read audio: %w", err))
				return
			}
		}
	}
}
