package rag

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/observability"
)

// synthesize speaks text and returns the audio hex encoded. It returns ""
// when there is no speaker, nothing to say, or synthesis fails.
func synthesize(ctx context.Context, speaker Speaker, text string, metrics *observability.Metrics) string {
	if speaker == nil || text == "" {
		return ""
	}
	var audio bytes.Buffer
	for chunk, err := range speaker.Speak(ctx, text) {
		if err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "speech synthesis failed", "error", err)
			metrics.TTSFailure()
			return ""
		}
		audio.Write(chunk)
	}
	return hex.EncodeToString(audio.Bytes())
}
