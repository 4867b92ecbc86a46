package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/taurusduan/ragflow-plus/internal/rag"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a dialog, knowledge base or model is not found.
	ErrNotFound = errors.New("not found")
	// ErrExternalService is returned when a model, the vector store or the
	// database fails while answering.
	ErrExternalService = errors.New("external service error")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// validationError converts the first validator failure into a ValidationError.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Message: "failed on " + fe.Tag()}
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// classify maps a pipeline error onto the service errors. Lookup errors and
// cancellation pass through unchanged.
func classify(err error) error {
	var missing *rag.MissingParameterError
	var lookup *rag.LookupError
	switch {
	case errors.As(err, &missing):
		return &ValidationError{Field: "args", Message: missing.Error()}
	case errors.As(err, &lookup):
		return err
	case errors.Is(err, rag.ErrNotUserTurn):
		return &ValidationError{Field: "messages", Message: err.Error()}
	case errors.Is(err, rag.ErrNoKnowledgeBase):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, rag.ErrInconsistentPrompt):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrExternalService, err)
	}
}
