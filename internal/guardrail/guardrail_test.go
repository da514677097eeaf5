package guardrail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeModerator flags text containing any of its trigger words.
type fakeModerator struct {
	triggers   []string
	categories []string
	err        error
	calls      int
}

func (f *fakeModerator) Moderate(ctx context.Context, text string) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, trig := range f.triggers {
		if strings.Contains(text, trig) {
			return &Result{Flagged: true, Categories: f.categories}, nil
		}
	}
	return &Result{}, nil
}

// fakeSender answers every message with a fixed string.
type fakeSender struct {
	answer string
	err    error
	calls  int
}

func (f *fakeSender) Send(ctx context.Context, userText string) (string, error) {
	f.calls++
	return f.answer, f.err
}

func TestCheckAllowsCleanText(t *testing.T) {
	mod := &fakeModerator{triggers: []string{"bad"}}
	c := NewChecker(mod, ModeFailOpen)

	if err := c.Check(context.Background(), "input", "perfectly fine"); err != nil {
		t.Fatalf("Check() error = %v, want nil", err)
	}
	if mod.calls != 1 {
		t.Errorf("moderator calls = %d, want 1", mod.calls)
	}
}

func TestCheckBlocksFlaggedText(t *testing.T) {
	mod := &fakeModerator{triggers: []string{"bad"}, categories: []string{"violence", "hate"}}
	c := NewChecker(mod, ModeFailOpen)

	err := c.Check(context.Background(), "input", "something bad")
	if err == nil {
		t.Fatal("Check() should block flagged text")
	}

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Check() error type = %T, want *BlockedError", err)
	}
	if blocked.Stage != "input" {
		t.Errorf("Stage = %q, want input", blocked.Stage)
	}
	if len(blocked.Categories) != 2 {
		t.Errorf("Categories = %v, want both", blocked.Categories)
	}
	if !strings.Contains(err.Error(), "violence") {
		t.Errorf("Error() = %q, should name flagged categories", err.Error())
	}
}

func TestCheckModeOff(t *testing.T) {
	mod := &fakeModerator{triggers: []string{"bad"}}
	c := NewChecker(mod, ModeOff)

	if err := c.Check(context.Background(), "input", "something bad"); err != nil {
		t.Fatalf("Check() error = %v, want nil when off", err)
	}
	if mod.calls != 0 {
		t.Errorf("moderator calls = %d, want 0 when off", mod.calls)
	}
}

func TestCheckNilChecker(t *testing.T) {
	var c *Checker
	if err := c.Check(context.Background(), "input", "anything"); err != nil {
		t.Fatalf("nil checker Check() error = %v, want nil", err)
	}
}

func TestCheckFailOpen(t *testing.T) {
	mod := &fakeModerator{err: fmt.Errorf("moderation endpoint down")}
	c := NewChecker(mod, ModeFailOpen)

	var observedStage string
	c.OnModerationError = func(stage string, err error) { observedStage = stage }

	if err := c.Check(context.Background(), "output", "anything"); err != nil {
		t.Fatalf("fail-open Check() error = %v, want nil", err)
	}
	if observedStage != "output" {
		t.Errorf("OnModerationError stage = %q, want output", observedStage)
	}
}

func TestCheckFailClosed(t *testing.T) {
	cause := fmt.Errorf("moderation endpoint down")
	c := NewChecker(&fakeModerator{err: cause}, ModeFailClosed)

	err := c.Check(context.Background(), "input", "anything")
	if err == nil {
		t.Fatal("fail-closed Check() should block on moderation failure")
	}

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("error type = %T, want *BlockedError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("BlockedError should wrap the moderation failure")
	}
}

func TestModeratedSendCleanConversation(t *testing.T) {
	mod := &fakeModerator{triggers: []string{"bad"}}
	sender := &fakeSender{answer: "a helpful answer"}
	m := Wrap(sender, NewChecker(mod, ModeFailOpen))

	got, err := m.Send(context.Background(), "a clean question")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got != "a helpful answer" {
		t.Errorf("Send() = %q", got)
	}
	// One check on the way in, one on the way out.
	if mod.calls != 2 {
		t.Errorf("moderator calls = %d, want 2", mod.calls)
	}
}

func TestModeratedSendBlocksInput(t *testing.T) {
	mod := &fakeModerator{triggers: []string{"bad"}, categories: []string{"violence"}}
	sender := &fakeSender{answer: "should never be produced"}
	m := Wrap(sender, NewChecker(mod, ModeFailOpen))

	_, err := m.Send(context.Background(), "something bad")
	if err == nil {
		t.Fatal("Send() should reject flagged input")
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) || blocked.Stage != "input" {
		t.Fatalf("error = %v, want input BlockedError", err)
	}
	// Flagged input never reaches the underlying sender.
	if sender.calls != 0 {
		t.Errorf("sender calls = %d, want 0", sender.calls)
	}
}

func TestModeratedSendReplacesFlaggedOutput(t *testing.T) {
	mod := &fakeModerator{triggers: []string{"toxic"}, categories: []string{"harassment"}}
	sender := &fakeSender{answer: "a toxic answer"}
	m := Wrap(sender, NewChecker(mod, ModeFailOpen))

	got, err := m.Send(context.Background(), "a clean question")
	if err != nil {
		t.Fatalf("Send() error = %v, flagged output should be replaced not failed", err)
	}
	if !strings.Contains(got, "[Response blocked by guardrails") {
		t.Errorf("Send() = %q, want a blocked-response notice", got)
	}
	if !strings.Contains(got, "harassment") {
		t.Errorf("Send() = %q, should name the flagged category", got)
	}
	if strings.Contains(got, "toxic answer") {
		t.Error("flagged output leaked through")
	}
}

func TestModeratedSendPassesSenderError(t *testing.T) {
	mod := &fakeModerator{}
	sender := &fakeSender{err: fmt.Errorf("transport exploded")}
	m := Wrap(sender, NewChecker(mod, ModeFailOpen))

	_, err := m.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "transport exploded") {
		t.Fatalf("Send() error = %v, want the sender's error", err)
	}
	// No output check when the turn failed.
	if mod.calls != 1 {
		t.Errorf("moderator calls = %d, want 1 (input only)", mod.calls)
	}
}
