package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mwhitaker/herald/internal/agent"
	"github.com/mwhitaker/herald/internal/config"
	"github.com/mwhitaker/herald/internal/llm"
	"github.com/mwhitaker/herald/internal/storage"
	"github.com/mwhitaker/herald/internal/tools"
)

// ActiveSession tracks an in-memory agent for a session.
type ActiveSession struct {
	Agent  *agent.Agent
	Cancel context.CancelFunc // cancels an in-flight turn
	mu     sync.Mutex         // one message at a time per session
}

// SessionManager tracks which sessions have a live Agent in memory.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSession
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*ActiveSession),
	}
}

// Get returns an active session if it exists.
func (sm *SessionManager) Get(sessionID string) (*ActiveSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[sessionID]
	return as, ok
}

// GetOrCreate returns an existing active session or builds a new agent
// from the session metadata: provider, model, profile and any stored
// transcript.
func (sm *SessionManager) GetOrCreate(
	ctx context.Context,
	sess *storage.Session,
	cfg *config.Config,
	store storage.Store,
	registry *tools.Registry,
) (*ActiveSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if as, ok := sm.sessions[sess.ID]; ok {
		return as, nil
	}

	providerName := sess.Provider
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	provider, err := cfg.Provider(providerName)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}

	model := sess.Model
	if model == "" {
		model = provider.Models["default"]
	}

	var profile *agent.Profile
	if sess.Profile != "" {
		profilePath := filepath.Join(cfg.Agent.ProfilesDir, sess.Profile+".yaml")
		profile, err = agent.LoadProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
	}

	maxIter := cfg.Agent.MaxIterations
	if profile != nil && profile.MaxIter > 0 {
		maxIter = profile.MaxIter
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

	// Optional lightweight model for transcript summarization.
	if utilityModel, ok := provider.Models["utility"]; ok && utilityModel != "" {
		a.SetUtilityLLM(llm.NewClient(provider.BaseURL, provider.APIKey, utilityModel, clientOpts...))
	}

	if profile != nil {
		a.SetSystemPrompt(profile.SystemPrompt)
		a.FilterTools(profile.Tools)
	}

	messages, err := store.LoadTranscript(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}
	a.SetHistory(messages)

	as := &ActiveSession{Agent: a}
	sm.sessions[sess.ID] = as
	return as, nil
}

// Remove removes an active session and cancels any in-flight work.
func (sm *SessionManager) Remove(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if as, ok := sm.sessions[sessionID]; ok {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, sessionID)
	}
}

// CloseAll cancels all active sessions.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, as := range sm.sessions {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, id)
	}
}
