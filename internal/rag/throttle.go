package rag

import (
	"github.com/taurusduan/ragflow-plus/internal/llm"
)

// MinDeltaTokens is the smallest delta a Throttle releases before the final flush.
const MinDeltaTokens = 16

// Throttle turns cumulative answer snapshots into deltas, holding back
// snapshots whose new text is shorter than MinDeltaTokens tokens.
//
// Snapshots must extend each other. The concatenation of every released
// delta, including the final flush, equals the final answer.
type Throttle struct {
	counter  llm.TokenCounter
	released string
}

// NewThrottle creates a throttle measuring deltas with counter.
func NewThrottle(counter llm.TokenCounter) *Throttle {
	return &Throttle{counter: counter}
}

// Offer considers a new snapshot. It returns the text added since the last
// released snapshot and whether that text is large enough to release.
func (t *Throttle) Offer(snapshot string) (string, bool) {
	delta := t.delta(snapshot)
	if t.counter.Count(delta) < MinDeltaTokens {
		return "", false
	}
	t.released = snapshot
	return delta, true
}

// Flush releases whatever is left of final, regardless of size. It reports
// false when nothing is left.
func (t *Throttle) Flush(final string) (string, bool) {
	delta := t.delta(final)
	if delta == "" {
		return "", false
	}
	t.released = final
	return delta, true
}

// Released returns the last released snapshot.
func (t *Throttle) Released() string {
	return t.released
}

func (t *Throttle) delta(snapshot string) string {
	if len(snapshot) <= len(t.released) {
		return ""
	}
	return snapshot[len(t.released):]
}
