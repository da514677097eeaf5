// Package guardrail layers content-moderation checks around a
// conversation loop. User input is checked before it is sent and model
// output is checked before it is surfaced; what happens when the
// moderation service itself fails is an explicit policy choice, not a
// silent fallback.
package guardrail

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Mode selects the posture when the moderation endpoint errors.
type Mode string

const (
	// ModeOff disables all checks.
	ModeOff Mode = "off"
	// ModeFailOpen lets content through when moderation itself fails.
	ModeFailOpen Mode = "fail_open"
	// ModeFailClosed blocks content when moderation itself fails.
	ModeFailClosed Mode = "fail_closed"
)

// Result is a moderation verdict.
type Result struct {
	Flagged    bool
	Categories []string
}

// Moderator checks a piece of text against a content policy.
type Moderator interface {
	Moderate(ctx context.Context, text string) (*Result, error)
}

// BlockedError reports content rejected by a guardrail.
type BlockedError struct {
	Stage      string // "input" or "output"
	Categories []string
	Cause      error // set when a fail-closed check blocked on a moderation failure
}

func (e *BlockedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s blocked: moderation unavailable: %v", e.Stage, e.Cause)
	}
	if len(e.Categories) == 0 {
		return fmt.Sprintf("%s blocked by content policy", e.Stage)
	}
	return fmt.Sprintf("%s violates content policy (flagged: %s)", e.Stage, strings.Join(e.Categories, ", "))
}

func (e *BlockedError) Unwrap() error { return e.Cause }

// Checker applies a Moderator under a configured failure mode.
type Checker struct {
	moderator Moderator
	mode      Mode

	// OnModerationError observes moderation transport failures that the
	// mode resolved (allowed or blocked) instead of returning.
	OnModerationError func(stage string, err error)
}

// NewChecker creates a Checker. ModeOff yields a checker that allows
// everything without calling the moderator.
func NewChecker(m Moderator, mode Mode) *Checker {
	return &Checker{moderator: m, mode: mode}
}

// Check moderates text for the given stage. It returns a *BlockedError
// when the content must not pass; nil means allowed.
func (c *Checker) Check(ctx context.Context, stage, text string) error {
	if c == nil || c.mode == ModeOff || c.moderator == nil {
		return nil
	}

	res, err := c.moderator.Moderate(ctx, text)
	if err != nil {
		if c.OnModerationError != nil {
			c.OnModerationError(stage, err)
		}
		if c.mode == ModeFailClosed {
			return &BlockedError{Stage: stage, Cause: err}
		}
		return nil // fail open
	}

	if res.Flagged {
		return &BlockedError{Stage: stage, Categories: res.Categories}
	}
	return nil
}

// Sender is the conversation surface guardrails wrap. *agent.Agent and
// *agent.Team both satisfy it.
type Sender interface {
	Send(ctx context.Context, userText string) (string, error)
}

// Moderated wraps a Sender with input and output checks.
type Moderated struct {
	sender  Sender
	checker *Checker
}

// Wrap layers the checker around a sender.
func Wrap(s Sender, c *Checker) *Moderated {
	return &Moderated{sender: s, checker: c}
}

// Send checks the user input, forwards it, then checks the answer.
// Flagged input returns a *BlockedError and nothing is sent. Flagged
// output is replaced by a notice naming the flagged categories, so the
// caller still receives a printable answer.
func (m *Moderated) Send(ctx context.Context, userText string) (string, error) {
	if err := m.checker.Check(ctx, "input", userText); err != nil {
		return "", err
	}

	answer, err := m.sender.Send(ctx, userText)
	if err != nil {
		return "", err
	}

	if blockErr := m.checker.Check(ctx, "output", answer); blockErr != nil {
		var blocked *BlockedError
		if errors.As(blockErr, &blocked) && len(blocked.Categories) > 0 {
			return fmt.Sprintf("[Response blocked by guardrails due to: %s]", strings.Join(blocked.Categories, ", ")), nil
		}
		return "[Response blocked by guardrails]", nil
	}

	return answer, nil
}
