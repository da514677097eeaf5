package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/mwhitaker/herald/internal/llm"
	"github.com/mwhitaker/herald/internal/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &storage.Session{
		ID:         "abc12345-0000-0000-0000-000000000000",
		Title:      "test session",
		Status:     storage.StatusActive,
		Provider:   "inception",
		Model:      "mercury",
		Profile:    "default",
		Moderation: "fail_open",
	}

	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	if got.Title != "test session" {
		t.Errorf("title = %q, want %q", got.Title, "test session")
	}
	if got.Status != storage.StatusActive {
		t.Errorf("status = %q, want %q", got.Status, storage.StatusActive)
	}
	if got.Provider != "inception" {
		t.Errorf("provider = %q, want %q", got.Provider, "inception")
	}
	if got.Moderation != "fail_open" {
		t.Errorf("moderation = %q, want %q", got.Moderation, "fail_open")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
}

func TestCreateSessionDefaultsModeration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &storage.Session{
		ID:     "def00000-0000-0000-0000-000000000000",
		Status: storage.StatusActive,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Moderation != "off" {
		t.Errorf("moderation = %q, want default %q", got.Moderation, "off")
	}
}

func TestGetSessionByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &storage.Session{
		ID:     "abc12345-0000-0000-0000-000000000000",
		Status: storage.StatusActive,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "abc12345")
	if err != nil {
		t.Fatalf("GetSession by prefix: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("got ID %q, want %q", got.ID, sess.ID)
	}
}

func TestGetSessionAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{
		"abc11111-0000-0000-0000-000000000000",
		"abc22222-0000-0000-0000-000000000000",
	} {
		if err := s.CreateSession(ctx, &storage.Session{ID: id, Status: storage.StatusActive}); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	_, err := s.GetSession(ctx, "abc")
	if err == nil {
		t.Fatal("ambiguous prefix should return error")
	}
	if !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("error = %v, want mention of ambiguity", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetSession(context.Background(), "nope")
	if err == nil {
		t.Fatal("missing session should return error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestListSessions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ids := []string{
		"s1000000-0000-0000-0000-000000000000",
		"s2000000-0000-0000-0000-000000000000",
		"s3000000-0000-0000-0000-000000000000",
	}
	for i, id := range ids {
		status := storage.StatusActive
		if i == 2 {
			status = storage.StatusCompleted
		}
		if err := s.CreateSession(ctx, &storage.Session{ID: id, Status: status}); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	all, err := s.ListSessions(ctx, storage.SessionListOptions{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListSessions() = %d sessions, want 3", len(all))
	}

	active, err := s.ListSessions(ctx, storage.SessionListOptions{Status: storage.StatusActive})
	if err != nil {
		t.Fatalf("ListSessions filtered: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active sessions = %d, want 2", len(active))
	}

	limited, err := s.ListSessions(ctx, storage.SessionListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("ListSessions limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited sessions = %d, want 1", len(limited))
	}
}

func TestUpdateSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &storage.Session{
		ID:     "upd00000-0000-0000-0000-000000000000",
		Status: storage.StatusActive,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sess.Title = "renamed"
	sess.Status = storage.StatusCompleted
	if err := s.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Title != "renamed" || got.Status != storage.StatusCompleted {
		t.Errorf("got title=%q status=%q after update", got.Title, got.Status)
	}
}

func TestSaveAndLoadTranscript(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &storage.Session{
		ID:     "tr000000-0000-0000-0000-000000000000",
		Status: storage.StatusActive,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	messages := []llm.Message{
		llm.SystemMessage("You are helpful."),
		llm.UserMessage("what time is it?"),
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "current_time", Args: map[string]any{}},
			},
		},
		llm.ToolResultMessage("tc1", "2026-08-23T10:00:00Z"),
		llm.AssistantMessage("It is 10am UTC."),
	}

	if err := s.SaveTranscript(ctx, sess.ID, messages); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.LoadTranscript(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if len(got) != len(messages) {
		t.Fatalf("loaded %d messages, want %d", len(got), len(messages))
	}

	// Order and pairing survive the round trip.
	if got[0].Role != llm.RoleSystem {
		t.Errorf("first role = %s, want system", got[0].Role)
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].ID != "tc1" {
		t.Errorf("tool calls = %+v, want tc1", got[2].ToolCalls)
	}
	if got[2].ToolCalls[0].Name != "current_time" {
		t.Errorf("tool call name = %q", got[2].ToolCalls[0].Name)
	}
	if got[3].Role != llm.RoleTool || got[3].ToolCallID != "tc1" {
		t.Errorf("tool result = %+v, want role=tool id=tc1", got[3])
	}
	if got[4].Content != "It is 10am UTC." {
		t.Errorf("final content = %q", got[4].Content)
	}
}

func TestSaveTranscriptReplaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &storage.Session{
		ID:     "rep00000-0000-0000-0000-000000000000",
		Status: storage.StatusActive,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first := []llm.Message{
		llm.SystemMessage("system"),
		llm.UserMessage("one"),
	}
	if err := s.SaveTranscript(ctx, sess.ID, first); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	second := append(first,
		llm.AssistantMessage("answer"),
		llm.UserMessage("two"),
	)
	if err := s.SaveTranscript(ctx, sess.ID, second); err != nil {
		t.Fatalf("SaveTranscript (2nd): %v", err)
	}

	got, err := s.LoadTranscript(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("loaded %d messages, want 4 (full replace, not append)", len(got))
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := &storage.Session{
		ID:     "del00000-0000-0000-0000-000000000000",
		Status: storage.StatusActive,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.SaveTranscript(ctx, sess.ID, []llm.Message{
		llm.SystemMessage("system"),
		llm.UserMessage("hello"),
	}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	if err := s.DeleteSession(ctx, "del00000"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if _, err := s.GetSession(ctx, sess.ID); err == nil {
		t.Error("session should be gone after delete")
	}

	msgs, err := s.LoadTranscript(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages remain after delete: %d", len(msgs))
	}
}

func TestLoadTranscriptEmpty(t *testing.T) {
	s := testStore(t)

	msgs, err := s.LoadTranscript(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}
