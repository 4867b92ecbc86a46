package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/rag"
)

// AnswerRenderer renders markdown answers for display.
type AnswerRenderer interface {
	Render(answer string) (string, error)
}

// sseWriter writes Server-Sent Events frames.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets the event stream headers. It reports false when w
// cannot flush, in which case nothing has been written.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes v as one "data:" frame.
func (s *sseWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) done() {
	_, _ = fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

// streamEnvelopes relays seq as SSE frames terminated by [DONE]. An error
// before the first envelope is answered with its HTTP status since no frame
// has been committed yet; a later error is sent as an error frame. Writing
// stops, and with it the pipeline, once the client is gone.
func streamEnvelopes(ctx context.Context, w http.ResponseWriter, seq iter.Seq2[rag.Envelope, error], renderer AnswerRenderer, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	if _, ok := w.(http.Flusher); !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	next, stop := iter.Pull2(seq)
	defer stop()

	env, err, more := next()
	if more && err != nil {
		handleServiceError(w, ctx, err, defaultMsg)
		return
	}

	sse, _ := newSSEWriter(w)
	frames := 0
	for ; more; env, err, more = next() {
		if err != nil {
			logger.ErrorContext(ctx, "error streaming answer", "error", err, "frames", frames)
			_, msg := errorStatus(err)
			if msg == "" {
				msg = err.Error()
			}
			_ = sse.send(ErrorResponse{Error: msg})
			break
		}
		if err := renderAnswer(&env, renderer); err != nil {
			logger.WarnContext(ctx, "failed to render answer", "error", err)
		}
		if err := sse.send(env); err != nil {
			logger.WarnContext(ctx, "client went away", "error", err, "frames", frames)
			return
		}
		frames++
	}
	sse.done()
	logger.DebugContext(ctx, "answer streamed", "frames", frames)
}

// renderAnswer replaces the markdown answer of env with its HTML rendering
// when renderer is set.
func renderAnswer(env *rag.Envelope, renderer AnswerRenderer) error {
	if renderer == nil || env.Answer == "" {
		return nil
	}
	html, err := renderer.Render(env.Answer)
	if err != nil {
		return err
	}
	env.Answer = html
	return nil
}
