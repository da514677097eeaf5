package agent

import (
	"context"
	"fmt"
	"strings"
)

// Team routes a conversation across several named agents. Each agent
// gets a transfer_to_<name> tool for every teammate; executing one
// switches the team's active agent, so the next turn is answered by the
// target. The turn in which the transfer happens still completes on the
// agent that requested it, which lets it acknowledge the handoff.
//
// Like a single Agent, a Team is not safe for concurrent use.
type Team struct {
	agents map[string]*Agent
	descs  map[string]string
	names  []string
	active string
}

// NewTeam creates an empty team.
func NewTeam() *Team {
	return &Team{
		agents: make(map[string]*Agent),
		descs:  make(map[string]string),
	}
}

// Add registers an agent under a name. The first agent added becomes
// the active one. The description tells other agents when to hand off
// to this one. Transfer tools are wired in both directions.
func (t *Team) Add(name string, a *Agent, description string) error {
	if name == "" {
		return fmt.Errorf("agent name must not be empty")
	}
	if _, exists := t.agents[name]; exists {
		return fmt.Errorf("agent %q already on the team", name)
	}

	for _, existing := range t.names {
		t.registerTransfer(t.agents[existing], name, description)
		t.registerTransfer(a, existing, t.descs[existing])
	}

	t.agents[name] = a
	t.descs[name] = description
	t.names = append(t.names, name)
	if t.active == "" {
		t.active = name
	}
	return nil
}

func (t *Team) registerTransfer(from *Agent, target, description string) {
	desc := description
	if desc == "" {
		desc = fmt.Sprintf("Hand the conversation to the %s agent.", target)
	} else {
		desc = fmt.Sprintf("Hand the conversation to the %s agent. %s", target, desc)
	}
	from.RegisterTool(transferToolName(target), desc, map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		t.active = target
		return fmt.Sprintf("Transferred to %s. The %s agent will handle the next message.", target, target), nil
	})
}

func transferToolName(target string) string {
	clean := strings.ReplaceAll(strings.ToLower(target), " ", "_")
	return "transfer_to_" + clean
}

// Active returns the name of the agent that will answer the next Send.
func (t *Team) Active() string {
	return t.active
}

// Agent returns a team member by name.
func (t *Team) Agent(name string) (*Agent, bool) {
	a, ok := t.agents[name]
	return a, ok
}

// Send routes the user message to the active agent. A transfer during
// the turn takes effect from the following Send.
func (t *Team) Send(ctx context.Context, userText string) (string, error) {
	if t.active == "" {
		return "", fmt.Errorf("team has no agents")
	}
	return t.agents[t.active].Send(ctx, userText)
}
