package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mwhitaker/herald/internal/llm"
	"github.com/mwhitaker/herald/internal/tools"
)

const defaultSystemPrompt = `You are Herald, a helpful AI assistant with access to tools.
When you need information from the system, use the available tools.
After using a tool, interpret the results for the user.`

// DefaultMaxIterations bounds the tool-call cycle of a single Send.
const DefaultMaxIterations = 5

// MaxIterationsMessage is returned by Send when the iteration budget is
// exhausted without a tool-call-free response. It is handed to the
// caller as an ordinary answer and never appended to the transcript.
const MaxIterationsMessage = "Max iterations reached without final response"

const defaultMaxTokens = 6000

// Agent owns one conversation transcript and drives the tool-augmented
// completion loop. It is not safe for concurrent use: Send mutates the
// transcript in place, and interleaved calls would corrupt the pairing
// between tool calls and tool results.
type Agent struct {
	client       llm.Client
	utilityLLM   llm.Client // optional, for summarization
	registry     *tools.Registry
	allowTools   map[string]bool // nil means all registered tools
	transcript   []llm.Message
	maxIter      int
	maxTokens    int
	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
	OnTextDelta  func(delta string)
}

// New creates an Agent with the given completion client, tool registry
// and iteration limit. A non-positive maxIterations selects the default.
// A nil registry gets an empty one, so RegisterTool always works.
func New(client llm.Client, registry *tools.Registry, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Agent{
		client:    client,
		registry:  registry,
		maxIter:   maxIterations,
		maxTokens: defaultMaxTokens,
		transcript: []llm.Message{
			llm.SystemMessage(defaultSystemPrompt),
		},
	}
}

// SetSystemPrompt overrides the default system prompt.
func (a *Agent) SetSystemPrompt(prompt string) {
	if prompt != "" {
		a.transcript[0] = llm.SystemMessage(prompt)
	}
}

// SetMaxTokens sets the context window token budget for compaction.
func (a *Agent) SetMaxTokens(maxTokens int) {
	if maxTokens > 0 {
		a.maxTokens = maxTokens
	}
}

// SetUtilityLLM sets an optional lightweight client for housekeeping
// tasks like history summarization.
func (a *Agent) SetUtilityLLM(client llm.Client) {
	a.utilityLLM = client
}

// SetClient swaps the conversation client (mid-session model switching).
func (a *Agent) SetClient(client llm.Client) {
	a.client = client
}

// RegisterTool binds a local callable under the given name. The schema
// is forwarded to the remote service verbatim and is not validated
// locally. Registering an existing name replaces the previous entry.
func (a *Agent) RegisterTool(name, description string, parameters map[string]any, fn tools.Func) {
	a.registry.RegisterLocal(llm.ToolDef{
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}, fn)
}

// Registry exposes the agent's tool registry.
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// FilterTools restricts the definitions advertised to the model to the
// given names. An empty list clears no restriction.
func (a *Agent) FilterTools(names []string) {
	if len(names) == 0 {
		return
	}
	a.allowTools = make(map[string]bool, len(names))
	for _, n := range names {
		a.allowTools[n] = true
	}
}

// ToolDefs returns the tool definitions advertised to the model,
// after any FilterTools restriction.
func (a *Agent) ToolDefs() []llm.ToolDef {
	defs := a.registry.Defs()
	if a.allowTools == nil {
		return defs
	}
	var filtered []llm.ToolDef
	for _, d := range defs {
		if a.allowTools[d.Name] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// Send appends userText to the transcript and runs the completion loop
// until the service answers without tool calls or the iteration budget
// runs out. Tool failures are folded back into the conversation; only
// transport failures surface as errors. On budget exhaustion the
// MaxIterationsMessage sentinel is returned with a nil error.
func (a *Agent) Send(ctx context.Context, userText string) (string, error) {
	return a.run(ctx, userText, false)
}

// SendStreaming is Send with token-by-token output via OnTextDelta.
func (a *Agent) SendStreaming(ctx context.Context, userText string) (string, error) {
	return a.run(ctx, userText, true)
}

func (a *Agent) run(ctx context.Context, userText string, streaming bool) (string, error) {
	a.compactTranscript(ctx)
	a.transcript = append(a.transcript, llm.UserMessage(userText))

	defs := a.ToolDefs()

	for i := 0; i < a.maxIter; i++ {
		var resp *llm.Response
		var err error
		if streaming {
			resp, err = a.client.ChatCompletionStream(ctx, a.transcript, defs, a.OnTextDelta)
		} else {
			resp, err = a.client.ChatCompletion(ctx, a.transcript, defs)
		}
		if err != nil {
			return "", fmt.Errorf("completion call (iteration %d): %w", i+1, err)
		}

		// The response joins the transcript even when it only carries
		// tool-call requests and no visible content.
		a.transcript = append(a.transcript, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			if a.OnToolCall != nil {
				a.OnToolCall(tc.Name, tc.Args)
			}

			result := a.executeTool(ctx, tc)

			if a.OnToolResult != nil {
				a.OnToolResult(tc.Name, result)
			}

			a.transcript = append(a.transcript, llm.ToolResultMessage(tc.ID, result))
		}
		// Loop back so the service can incorporate the tool results.
	}

	return MaxIterationsMessage, nil
}

// executeTool resolves and invokes one tool call. Failures come back as
// strings: the error re-enters the conversation so the remote model can
// react to it instead of the turn aborting.
func (a *Agent) executeTool(ctx context.Context, tc llm.ToolCall) string {
	result, err := a.registry.Call(ctx, tc.Name, tc.Args)
	if err != nil {
		if errors.Is(err, tools.ErrUnknownTool) {
			return fmt.Sprintf("Error: function %s not found", tc.Name)
		}
		return fmt.Sprintf("Error executing %s: %s", tc.Name, err)
	}
	return result
}

// History returns the current transcript.
func (a *Agent) History() []llm.Message {
	return a.transcript
}

// HistoryJSON returns the transcript as formatted JSON (for display).
func (a *Agent) HistoryJSON() string {
	data, _ := json.MarshalIndent(a.transcript, "", "  ")
	return string(data)
}

// SetHistory replaces the transcript (used when resuming a session).
func (a *Agent) SetHistory(messages []llm.Message) {
	if len(messages) == 0 {
		return
	}
	a.transcript = messages
}

// Reset truncates the transcript back to the original system message.
// The tool registry is left untouched.
func (a *Agent) Reset() {
	a.transcript = a.transcript[:1]
}

// String returns a summary of the agent state.
func (a *Agent) String() string {
	return fmt.Sprintf("Agent(tools=%d, transcript=%d messages, maxIter=%d)",
		len(a.registry.Defs()), len(a.transcript), a.maxIter)
}

// FormatToolCall returns a human-readable string for a tool call.
func FormatToolCall(name string, args map[string]any) string {
	var parts []string
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
