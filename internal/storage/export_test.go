package storage

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mwhitaker/herald/internal/llm"
)

func exportFixture() (*Session, []llm.Message) {
	sess := &Session{
		ID:         "exp00000-0000-0000-0000-000000000000",
		Title:      "weather chat",
		Status:     StatusCompleted,
		Provider:   "inception",
		Model:      "mercury",
		Moderation: "fail_open",
		CreatedAt:  time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}
	messages := []llm.Message{
		llm.SystemMessage("be helpful"),
		llm.UserMessage("weather in Paris?"),
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "get_weather", Args: map[string]any{"city": "Paris"}},
			},
		},
		llm.ToolResultMessage("tc1", `{"temp":22}`),
		llm.AssistantMessage("It's 22°C in Paris."),
	}
	return sess, messages
}

func TestExportMarkdown(t *testing.T) {
	sess, messages := exportFixture()

	md := ExportMarkdown(sess, messages)

	for _, want := range []string{
		"# weather chat",
		"- **Provider:** inception",
		"- **Moderation:** fail_open",
		"## You",
		"weather in Paris?",
		"## Herald",
		"It's 22°C in Paris.",
		"`get_weather`",
		"Tool Result",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// The system prompt stays out of the export.
	if strings.Contains(md, "be helpful") {
		t.Error("system prompt leaked into the export")
	}
}

func TestExportMarkdownModerationOffOmitted(t *testing.T) {
	sess, messages := exportFixture()
	sess.Moderation = "off"

	md := ExportMarkdown(sess, messages)
	if strings.Contains(md, "Moderation") {
		t.Error("moderation line should be omitted when off")
	}
}

func TestExportJSON(t *testing.T) {
	sess, messages := exportFixture()

	data, err := ExportJSON(sess, messages)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	var decoded struct {
		Session  *Session      `json:"session"`
		Messages []llm.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.Session.ID != sess.ID {
		t.Errorf("session id = %q", decoded.Session.ID)
	}
	if len(decoded.Messages) != len(messages) {
		t.Errorf("messages = %d, want %d", len(decoded.Messages), len(messages))
	}
	if decoded.Messages[2].ToolCalls[0].Name != "get_weather" {
		t.Errorf("tool call lost in round trip: %+v", decoded.Messages[2])
	}
}
