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

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Client is a chat client for an OpenAI-compatible chat completions API
// (llama.cpp, vLLM, OpenAI).
type Client struct {
	BaseURL string
	Model   string
	// MaxContext is the model's context window in tokens.
	MaxContext int
	client     *openai.Client
}

// NewClient creates a new LLM client. baseURL is the server root without the
// /v1 suffix.
func NewClient(baseURL, apiKey, model string, maxContext int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return &Client{
		BaseURL:    baseURL,
		Model:      model,
		MaxContext: maxContext,
		client:     openai.NewClientWithConfig(cfg),
	}
}

// MaxTokens returns the model's context window in tokens.
func (c *Client) MaxTokens() int {
	return c.MaxContext
}

func (c *Client) buildRequest(system string, messages []Message, params ChatParams) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: msgs,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.PresencePenalty != nil {
		req.PresencePenalty = *params.PresencePenalty
	}
	if params.FrequencyPenalty != nil {
		req.FrequencyPenalty = *params.FrequencyPenalty
	}
	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		req.MaxTokens = *params.MaxTokens
	}
	return req
}

// Chat sends a chat completion request and returns the full reply.
// Reasoning content, when the server returns it, is prepended inside
// <think>...</think>.
func (c *Client) Chat(ctx context.Context, system string, messages []Message, params ChatParams) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(system, messages, params))
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	msg := resp.Choices[0].Message
	if msg.ReasoningContent != "" {
		return thinkOpen + msg.ReasoningContent + thinkClose + msg.Content, nil
	}
	return msg.Content, nil
}

// ChatStream sends a streaming chat completion request.
//
// Each value yielded by the returned sequence is the full answer produced so
// far, not the newly received delta. A failure ends the sequence with a
// non-nil error. Stopping the iteration early closes the underlying stream.
func (c *Client) ChatStream(ctx context.Context, system string, messages []Message, params ChatParams) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := c.buildRequest(system, messages, params)
		req.Stream = true

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", fmt.Errorf("failed to send request: %w", err))
			return
		}
		defer func() {
			_ = stream.Close()
		}()

		var answer strings.Builder
		thinking := false
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield("", fmt.Errorf("failed to read stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta
			switch {
			case delta.ReasoningContent != "":
				if !thinking {
					answer.WriteString(thinkOpen)
					thinking = true
				}
				answer.WriteString(delta.ReasoningContent)
			case delta.Content != "":
				if thinking {
					answer.WriteString(thinkClose)
					thinking = false
				}
				answer.WriteString(delta.Content)
			default:
				continue
			}

			if !yield(answer.String(), nil) {
				return
			}
		}

		if thinking {
			answer.WriteString(thinkClose)
			yield(answer.String(), nil)
		}
	}
}
