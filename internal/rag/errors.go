package rag

import (
	"errors"
	"fmt"
)

// MixedEmbeddingsAnswer is answered when the knowledge bases of a dialog
// were embedded with different models.
const MixedEmbeddingsAnswer = "**ERROR**: Knowledge bases use different embedding models."

var (
	// ErrInconsistentPrompt is returned when the fitted prompt lost its
	// system or user message.
	ErrInconsistentPrompt = errors.New("prompt must keep a system and a user message")
	// ErrNotUserTurn is returned when a conversation does not end with a user message.
	ErrNotUserTurn = errors.New("the last message of the conversation is not from user")
	// ErrNoKnowledgeBase is returned when none of the requested knowledge bases exist.
	ErrNoKnowledgeBase = errors.New("no knowledge base found")
)

// MissingParameterError reports a required prompt parameter absent from the request.
type MissingParameterError struct {
	Key string
}

func (e *MissingParameterError) Error() string {
	return "missing parameter: " + e.Key
}

// LookupError reports a model that cannot be resolved.
type LookupError struct {
	Kind  string // "chat", "embedding", "rerank" or "tts"
	Model string
	Err   error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s model(%s) not found: %v", e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("%s model(%s) not found", e.Kind, e.Model)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func lookupError(kind, model string, err error) error {
	var le *LookupError
	if errors.As(err, &le) {
		return err
	}
	return &LookupError{Kind: kind, Model: model, Err: err}
}
