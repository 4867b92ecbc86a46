package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_pipelines.go -package=mocks github.com/taurusduan/ragflow-plus/internal/service Conversation,Asker,DialogStore
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService github.com/taurusduan/ragflow-plus/internal/service ChatService

import (
	"context"
	"fmt"
	"iter"

	"github.com/go-playground/validator/v10"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/rag"
)

var validate = validator.New()

// Conversation runs a multi-turn chat against a dialog.
// This interface is defined from the service layer's perspective (consumer-first).
type Conversation interface {
	Chat(ctx context.Context, dialog rag.Dialog, messages []llm.Message, opts rag.ChatOptions) iter.Seq2[rag.Envelope, error]
}

// Asker answers single questions over knowledge bases.
type Asker interface {
	Ask(ctx context.Context, req rag.AskRequest) iter.Seq2[rag.Envelope, error]
}

// DialogStore looks up dialog configurations.
type DialogStore interface {
	Get(ctx context.Context, id string) (rag.Dialog, error)
}

// ConverseRequest represents a conversation turn in the domain layer.
type ConverseRequest struct {
	DialogID string        `validate:"required"`
	Messages []llm.Message `validate:"required,min=1,dive"`
	DocIDs   []string      `validate:"dive,required"`
	Args     map[string]string
	Quote    *bool
	Stream   bool
}

// ChatService validates requests and runs the answer pipelines.
//
// Request errors are returned before any envelope is produced so callers can
// report them before committing to a response. Errors raised while the
// pipeline runs end the returned sequence.
type ChatService interface {
	// Converse answers the last user message of a conversation.
	Converse(ctx context.Context, req ConverseRequest) (iter.Seq2[rag.Envelope, error], error)
	// Ask answers a single question over knowledge bases.
	Ask(ctx context.Context, req rag.AskRequest) (iter.Seq2[rag.Envelope, error], error)
}

// chatService implements ChatService.
type chatService struct {
	dialogs      DialogStore
	conversation Conversation
	asker        Asker
}

// NewChatService creates a new ChatService.
func NewChatService(dialogs DialogStore, conversation Conversation, asker Asker) ChatService {
	return &chatService{
		dialogs:      dialogs,
		conversation: conversation,
		asker:        asker,
	}
}

// Converse answers the last user message of req.Messages with the dialog req.DialogID.
func (s *chatService) Converse(ctx context.Context, req ConverseRequest) (iter.Seq2[rag.Envelope, error], error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "invalid conversation request", "error", err)
		return nil, validationError(err)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, &ValidationError{Field: "messages", Message: fmt.Sprintf("unknown role %q", m.Role)}
		}
	}

	dialog, err := s.dialogs.Get(ctx, req.DialogID)
	if err != nil {
		logger.WarnContext(ctx, "dialog lookup failed", "dialog_id", req.DialogID, "error", err)
		return nil, err
	}

	logger.InfoContext(ctx, "conversation started",
		"dialog_id", dialog.ID,
		"messages", len(req.Messages),
		"stream", req.Stream,
		"kb_count", len(dialog.KBIDs),
	)
	seq := s.conversation.Chat(ctx, dialog, req.Messages, rag.ChatOptions{
		Stream: req.Stream,
		DocIDs: req.DocIDs,
		Args:   req.Args,
		Quote:  req.Quote,
	})
	return classified(ctx, seq), nil
}

// Ask answers req.Question over req.KBIDs.
func (s *chatService) Ask(ctx context.Context, req rag.AskRequest) (iter.Seq2[rag.Envelope, error], error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid ask request", "error", err)
		return nil, validationError(err)
	}

	logger.InfoContext(ctx, "ask started", "kb_count", len(req.KBIDs), "question_length", len(req.Question))
	return classified(ctx, s.asker.Ask(ctx, req)), nil
}

// classified maps pipeline errors onto the service error taxonomy.
func classified(ctx context.Context, seq iter.Seq2[rag.Envelope, error]) iter.Seq2[rag.Envelope, error] {
	return func(yield func(rag.Envelope, error) bool) {
		for env, err := range seq {
			if err != nil {
				err = classify(err)
				contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "answer pipeline failed", "error", err)
				yield(rag.Envelope{}, err)
				return
			}
			if !yield(env, nil) {
				return
			}
		}
	}
}
