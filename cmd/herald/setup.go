package main

import (
	"fmt"
	"path/filepath"

	"github.com/mwhitaker/herald/internal/agent"
	"github.com/mwhitaker/herald/internal/config"
	"github.com/mwhitaker/herald/internal/guardrail"
	"github.com/mwhitaker/herald/internal/llm"
	"github.com/mwhitaker/herald/internal/tools"
)

// agentSetup is everything the chat/ask commands resolve from config
// and flags before a conversation starts.
type agentSetup struct {
	Agent    *agent.Agent
	Checker  *guardrail.Checker
	Registry *tools.Registry
	Provider string
	Model    string
	Profile  *agent.Profile
}

// buildAgent resolves provider/model/profile from flags and config and
// assembles the agent with builtin tools, configured MCP servers and
// the guardrail checker. Callers own Registry.Close.
func buildAgent(cfg *config.Config, warn func(format string, args ...any)) (*agentSetup, error) {
	var profile *agent.Profile
	var err error
	if profileFlag != "" {
		profilePath := filepath.Join(cfg.Agent.ProfilesDir, profileFlag+".yaml")
		profile, err = agent.LoadProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
	}

	providerName := providerFlag
	if providerName == "" {
		if profile != nil && profile.Provider != "" {
			providerName = profile.Provider
		} else {
			providerName = cfg.DefaultProvider
		}
	}

	provider, err := cfg.Provider(providerName)
	if err != nil {
		return nil, err
	}

	model := modelFlag
	if model == "" {
		if profile != nil && profile.Model != "" {
			model = profile.Model
		} else {
			model = provider.Models["default"]
		}
	}

	maxIter := cfg.Agent.MaxIterations
	if profile != nil && profile.MaxIter > 0 {
		maxIter = profile.MaxIter
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)
	for name, toolCfg := range cfg.Tools {
		if err := registry.RegisterServer(name, toolCfg); err != nil {
			warn("Warning: failed to start tool server %s: %v\n", name, err)
		}
	}

	var clientOpts []llm.Option
	if provider.Temperature > 0 {
		clientOpts = append(clientOpts, llm.WithTemperature(provider.Temperature))
	}
	if provider.MaxTokens > 0 {
		clientOpts = append(clientOpts, llm.WithMaxTokens(provider.MaxTokens))
	}

	client := llm.NewClient(provider.BaseURL, provider.APIKey, model, clientOpts...)
	a := agent.New(client, registry, maxIter)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)

	if utilityModel, ok := provider.Models["utility"]; ok && utilityModel != "" {
		a.SetUtilityLLM(llm.NewClient(provider.BaseURL, provider.APIKey, utilityModel, clientOpts...))
	}

	if profile != nil {
		a.SetSystemPrompt(profile.SystemPrompt)
		a.FilterTools(profile.Tools)
	}

	return &agentSetup{
		Agent:    a,
		Checker:  newChecker(cfg, warn),
		Registry: registry,
		Provider: providerName,
		Model:    model,
		Profile:  profile,
	}, nil
}

// newChecker builds the guardrail checker from config. Guardrails off
// yields a checker that allows everything.
func newChecker(cfg *config.Config, warn func(format string, args ...any)) *guardrail.Checker {
	mode := cfg.GuardrailMode()
	if mode == guardrail.ModeOff {
		return guardrail.NewChecker(nil, guardrail.ModeOff)
	}
	moderator := guardrail.NewOpenAIModerator(cfg.Guardrails.APIKey, cfg.Guardrails.Model)
	checker := guardrail.NewChecker(moderator, mode)
	checker.OnModerationError = func(stage string, err error) {
		warn("Warning: %s guardrail check error: %v\n", stage, err)
	}
	return checker
}
