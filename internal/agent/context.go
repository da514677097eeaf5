package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mwhitaker/herald/internal/llm"
)

// estimateTokens approximates the token count of a message with the
// chars/4 heuristic. Good enough for context budgeting.
func estimateTokens(m llm.Message) int {
	tokens := len(m.Content) / 4
	for _, tc := range m.ToolCalls {
		tokens += len(tc.Name) / 4
		if argsJSON, err := json.Marshal(tc.Args); err == nil {
			tokens += len(argsJSON) / 4
		}
	}
	if tokens == 0 {
		tokens = 1 // role overhead
	}
	return tokens
}

func estimateTranscriptTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	return total
}

// compactTranscript summarizes older messages once the transcript
// exceeds the token budget. The original system message always stays
// first; the summary joins as an extra system message behind it.
func (a *Agent) compactTranscript(ctx context.Context) {
	total := estimateTranscriptTokens(a.transcript)
	if total <= a.maxTokens {
		return
	}

	// Keep recent messages within 60% of the budget.
	recentBudget := a.maxTokens * 60 / 100
	splitIdx := findSplitPoint(a.transcript, recentBudget)
	if splitIdx >= len(a.transcript) {
		return
	}

	old := a.transcript[1:splitIdx]
	if len(old) == 0 {
		return
	}

	summarizer := a.client
	if a.utilityLLM != nil {
		summarizer = a.utilityLLM
	}
	summary, err := summarizeMessages(ctx, summarizer, old)
	if err != nil {
		// Fallback: plain trim keeping the most recent messages.
		a.trimTranscript(10)
		return
	}

	summaryMsg := llm.SystemMessage("[Prior conversation summary]\n" + summary)
	compacted := make([]llm.Message, 0, 2+len(a.transcript)-splitIdx)
	compacted = append(compacted, a.transcript[0])
	compacted = append(compacted, summaryMsg)
	compacted = append(compacted, a.transcript[splitIdx:]...)
	a.transcript = compacted
}

// findSplitPoint returns the index where the "recent" section of the
// transcript begins, chosen so the recent section fits the budget and
// always starts at a user message so tool call/result pairs stay
// together. Index 0 (system message) is never part of a split.
func findSplitPoint(messages []llm.Message, recentTokenBudget int) int {
	if len(messages) <= 2 {
		return len(messages)
	}

	tokens := 0
	budgetExceeded := false
	splitIdx := len(messages)
	for i := len(messages) - 1; i >= 1; i-- {
		msgTokens := estimateTokens(messages[i])
		if tokens+msgTokens > recentTokenBudget {
			splitIdx = i + 1
			budgetExceeded = true
			break
		}
		tokens += msgTokens
	}

	if !budgetExceeded {
		return len(messages)
	}

	if splitIdx >= len(messages) {
		splitIdx = len(messages) - 1
	}

	// Back up to the nearest user-message boundary.
	for splitIdx > 1 {
		if messages[splitIdx].Role == llm.RoleUser {
			break
		}
		splitIdx--
	}

	if splitIdx <= 1 || messages[splitIdx].Role != llm.RoleUser {
		return len(messages)
	}

	return splitIdx
}

// trimTranscript keeps the system message plus the last N messages.
func (a *Agent) trimTranscript(keepLast int) {
	if len(a.transcript) <= keepLast+1 {
		return
	}
	system := a.transcript[0]
	recent := a.transcript[len(a.transcript)-keepLast:]
	a.transcript = append([]llm.Message{system}, recent...)
}

// summarizeMessages asks the model for a concise summary of a slice of
// the transcript.
func summarizeMessages(ctx context.Context, client llm.Client, messages []llm.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		prefix := string(m.Role)
		if m.ToolCallID != "" {
			prefix = fmt.Sprintf("tool_result(%s)", m.ToolCallID)
		}
		text := m.Content
		for _, tc := range m.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Args)
			text += fmt.Sprintf("\n[tool_call: %s(%s)]", tc.Name, string(argsJSON))
		}
		fmt.Fprintf(&b, "[%s]: %s\n", prefix, text)
	}

	prompt := []llm.Message{
		llm.SystemMessage("You are a summarization assistant. Produce a concise summary of the following conversation excerpt. " +
			"Preserve key facts, decisions, tool results, and context the user or assistant may need later. " +
			"Output only the summary, no preamble."),
		llm.UserMessage("Summarize this conversation:\n\n" + b.String()),
	}

	resp, err := client.ChatCompletion(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("summarization call: %w", err)
	}

	summary := resp.Message.Content
	const maxSummaryChars = 4000
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars] + "\n... (summary truncated)"
	}

	return summary, nil
}
