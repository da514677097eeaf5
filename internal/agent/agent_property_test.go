package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mwhitaker/herald/internal/llm"
	"github.com/mwhitaker/herald/internal/tools"
)

// countingRegistry wraps a registry with a call counter for the echo tool.
func countingRegistry(calls *int) *tools.Registry {
	r := tools.NewRegistry()
	r.RegisterLocal(llm.ToolDef{Name: "echo"},
		func(ctx context.Context, args map[string]any) (any, error) {
			*calls++
			return "ok", nil
		})
	return r
}

func TestPropertyLoopTermination(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// As long as responses request tool calls, the loop continues; a
	// tool-call-free response ends the turn immediately.
	properties.Property("loop runs one completion per tool round plus the final answer", prop.ForAll(
		func(rounds int) bool {
			responses := make([]llm.Response, 0, rounds+1)
			for i := 0; i < rounds; i++ {
				responses = append(responses, toolCallResponse(
					fmt.Sprintf("tc%d", i), "echo", map[string]any{}))
			}
			responses = append(responses, llm.Response{Message: llm.AssistantMessage("final")})

			mock := &scriptedClient{responses: responses}
			toolCalls := 0
			a := New(mock, countingRegistry(&toolCalls), rounds+5)

			got, err := a.Send(context.Background(), "go")
			if err != nil || got != "final" {
				return false
			}
			if mock.callCount != rounds+1 || toolCalls != rounds {
				return false
			}
			// system + user + rounds×(assistant+tool) + final assistant
			return len(a.History()) == 3+2*rounds
		},
		gen.IntRange(0, 8),
	))

	// Exhausting the iteration budget yields the sentinel with a nil
	// error, after exactly maxIter completion calls, and the sentinel
	// never enters the transcript.
	properties.Property("budget exhaustion returns the sentinel without recording it", prop.ForAll(
		func(maxIter int) bool {
			responses := make([]llm.Response, maxIter+3)
			for i := range responses {
				responses[i] = toolCallResponse(
					fmt.Sprintf("tc%d", i), "echo", map[string]any{})
			}

			mock := &scriptedClient{responses: responses}
			toolCalls := 0
			a := New(mock, countingRegistry(&toolCalls), maxIter)

			got, err := a.Send(context.Background(), "go")
			if err != nil || got != MaxIterationsMessage {
				return false
			}
			if mock.callCount != maxIter || toolCalls != maxIter {
				return false
			}
			for _, m := range a.History() {
				if m.Content == MaxIterationsMessage {
					return false
				}
			}
			return len(a.History()) == 2+2*maxIter
		},
		gen.IntRange(1, 8),
	))

	// Every assistant tool call is answered by a tool message with the
	// matching ID before the next assistant message.
	properties.Property("tool calls and results stay paired in order", prop.ForAll(
		func(rounds, callsPerRound int) bool {
			responses := make([]llm.Response, 0, rounds+1)
			id := 0
			for i := 0; i < rounds; i++ {
				var tcs []llm.ToolCall
				for j := 0; j < callsPerRound; j++ {
					tcs = append(tcs, llm.ToolCall{
						ID: fmt.Sprintf("tc%d", id), Name: "echo", Args: map[string]any{}})
					id++
				}
				responses = append(responses, llm.Response{Message: llm.Message{
					Role: llm.RoleAssistant, ToolCalls: tcs}})
			}
			responses = append(responses, llm.Response{Message: llm.AssistantMessage("done")})

			toolCalls := 0
			a := New(&scriptedClient{responses: responses}, countingRegistry(&toolCalls), rounds+5)
			if _, err := a.Send(context.Background(), "go"); err != nil {
				return false
			}

			h := a.History()
			for i, m := range h {
				for k, tc := range m.ToolCalls {
					resultIdx := i + 1 + k
					if resultIdx >= len(h) {
						return false
					}
					res := h[resultIdx]
					if res.Role != llm.RoleTool || res.ToolCallID != tc.ID {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(0, 5),
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}
