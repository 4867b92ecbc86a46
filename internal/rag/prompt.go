package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/taurusduan/ragflow-plus/internal/citation"
	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
)

// Shares of the model context window.
const (
	knowledgeShare = 0.97
	messageShare   = 0.95
)

// defaultMaxTokens is used when a model does not report its context window.
const defaultMaxTokens = 8192

const citationInstruction = `

# Citations
- Insert citation markers after the sentences that use the knowledge above.
- A marker has the form ##i$$ where i is the ID of the fragment the sentence relies on, e.g. "The sky is blue ##0$$."
- Place at most 4 markers after a sentence, e.g. "##0$$ ##3$$".
- Do not cite anything when the answer does not rely on the knowledge.
- Never invent IDs and never put markers inside code blocks.
`

const keywordPrompt = `You are a text analyzer. Extract the %d most important keywords or phrases of the text below.
Reply with the keywords only, separated by commas, in the language of the text.

### Text:
%s`

// knowledgeBlocks formats retrieved chunks for the prompt, grouped by document.
// Chunks are added in order until they would exceed 97% of maxTokens. Each
// fragment is labelled with its chunk index so the model can cite it.
func knowledgeBlocks(ctx context.Context, kb retrieval.Result, maxTokens int, counter llm.TokenCounter) []string {
	budget := int(float64(maxTokens) * knowledgeShare)
	used, n := 0, 0
	for _, ck := range kb.Chunks {
		used += counter.Count(ck.Content)
		if used > budget {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "not all retrieved chunks fit into the prompt",
				"included", n,
				"retrieved", len(kb.Chunks),
			)
			break
		}
		n++
	}

	var order []string
	fragments := make(map[string][]string)
	for i, ck := range kb.Chunks[:n] {
		if _, ok := fragments[ck.DocName]; !ok {
			order = append(order, ck.DocName)
		}
		fragments[ck.DocName] = append(fragments[ck.DocName], fmt.Sprintf("ID: %d\n%s", i, ck.Content))
	}

	blocks := make([]string, 0, len(order))
	for _, name := range order {
		var b strings.Builder
		fmt.Fprintf(&b, "\nDocument: %s \nRelevant fragments as follows:\n", name)
		for i, frag := range fragments[name] {
			fmt.Fprintf(&b, "%d. %s\n", i+1, frag)
		}
		blocks = append(blocks, b.String())
	}
	return blocks
}

// joinKnowledge builds the value of the {knowledge} placeholder.
func joinKnowledge(blocks []string) string {
	return "\n------\n" + strings.Join(blocks, "\n\n------\n\n")
}

// fillTemplate replaces "{key}" placeholders of tmpl with args.
func fillTemplate(tmpl string, args map[string]string) string {
	if len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, 2*len(args))
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// bindParameters checks the template parameters against args. It returns the
// template with absent optional parameters blanked out, or a
// MissingParameterError for the first absent required one. The knowledge
// parameter is filled later from retrieval.
func bindParameters(cfg PromptConfig, args map[string]string) (string, error) {
	system := cfg.System
	for _, p := range cfg.Parameters {
		if p.Key == "knowledge" {
			continue
		}
		if _, ok := args[p.Key]; ok {
			continue
		}
		if !p.Optional {
			return "", &MissingParameterError{Key: p.Key}
		}
		system = strings.ReplaceAll(system, "{"+p.Key+"}", " ")
	}
	return system, nil
}

// history returns messages without system turns and with citation markers
// removed from their content.
func history(messages []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: citation.Strip(m.Content)})
	}
	return out
}

// recentQuestions returns the content of the last n user messages.
func recentQuestions(messages []llm.Message, n int) []string {
	var qs []string
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			qs = append(qs, m.Content)
		}
	}
	if len(qs) > n {
		qs = qs[len(qs)-n:]
	}
	return qs
}

// fitMessages trims msgs to fit in maxTokens and returns the tokens used.
// It first keeps only the system messages and the last message, then
// truncates whichever of the first and last message dominates.
func fitMessages(msgs []llm.Message, maxTokens int, counter llm.TokenCounter) (int, []llm.Message) {
	count := func(ms []llm.Message) int {
		n := 0
		for _, m := range ms {
			n += counter.Count(m.Content)
		}
		return n
	}

	if c := count(msgs); c < maxTokens {
		return c, msgs
	}

	var kept []llm.Message
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			kept = append(kept, m)
		}
	}
	if len(msgs) > 1 {
		kept = append(kept, msgs[len(msgs)-1])
	}
	if c := count(kept); c < maxTokens || len(kept) == 0 {
		return c, kept
	}

	first := counter.Count(kept[0].Content)
	last := counter.Count(kept[len(kept)-1].Content)
	if float64(first)/float64(first+last) > 0.8 {
		kept[0].Content = counter.Truncate(kept[0].Content, maxTokens-last)
		return maxTokens, kept
	}
	kept[len(kept)-1].Content = counter.Truncate(kept[len(kept)-1].Content, maxTokens-first)
	return maxTokens, kept
}

// extractKeywords asks model for the keywords of question. Failures are
// logged and yield no keywords.
func extractKeywords(ctx context.Context, model ChatModel, question string, topN int) string {
	prompt := fmt.Sprintf(keywordPrompt, topN, question)
	kw, err := model.Chat(ctx, prompt, []llm.Message{{Role: llm.RoleUser, Content: "Output: "}}, llm.ChatParams{}.WithTemperature(0.2))
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "keyword extraction failed", "error", err)
		return ""
	}
	if _, after, ok := strings.Cut(kw, "</think>"); ok {
		kw = after
	}
	return strings.TrimSpace(kw)
}
