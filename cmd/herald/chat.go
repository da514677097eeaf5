package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mwhitaker/herald/internal/agent"
	"github.com/mwhitaker/herald/internal/config"
	"github.com/mwhitaker/herald/internal/guardrail"
	"github.com/mwhitaker/herald/internal/storage"
)

var resumeFlag string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session with the agent",
	Long: `Start an interactive conversation with a Herald agent.
The agent can call tools to help answer your questions, and every
turn is persisted so sessions can be resumed later.

Examples:
  herald chat
  herald chat --provider openai
  herald chat --provider inception --model mercury
  herald chat --resume 3f2a`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&resumeFlag, "resume", "", "Resume a stored session by ID (prefix ok)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	var sess *storage.Session
	if resumeFlag != "" {
		sess, err = store.GetSession(ctx, resumeFlag)
		if err != nil {
			return fmt.Errorf("resuming session: %w", err)
		}
		// The stored session wins over config defaults so the
		// conversation continues against the same model.
		if providerFlag == "" {
			providerFlag = sess.Provider
		}
		if modelFlag == "" {
			modelFlag = sess.Model
		}
		if profileFlag == "" {
			profileFlag = sess.Profile
		}
	}

	setup, err := buildAgent(cfg, warnf)
	if err != nil {
		return err
	}
	defer setup.Registry.Close()

	a := setup.Agent

	if sess != nil {
		messages, err := store.LoadTranscript(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("loading transcript: %w", err)
		}
		a.SetHistory(messages)
	} else {
		sess = &storage.Session{
			ID:         uuid.New().String(),
			Status:     storage.StatusActive,
			Provider:   setup.Provider,
			Model:      setup.Model,
			Profile:    profileFlag,
			Moderation: string(cfg.GuardrailMode()),
		}
		if err := store.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	}

	fmt.Printf("Herald - Interactive Agent Chat\n")
	if setup.Profile != nil {
		fmt.Printf("Profile: %s\n", setup.Profile.Name)
	}
	fmt.Printf("Provider: %s | Model: %s\n", setup.Provider, setup.Model)
	fmt.Printf("Session: %s\n", sess.ID[:8])
	if mode := cfg.GuardrailMode(); mode != guardrail.ModeOff {
		fmt.Printf("Guardrails: %s (%s)\n", cfg.Guardrails.Model, mode)
	}

	if setup.Registry.HasTools() {
		fmt.Printf("Tools: %d available\n", len(setup.Registry.Defs()))
	}

	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	// Wire up callbacks for display
	a.OnTextDelta = func(delta string) {
		fmt.Print(delta)
	}
	a.OnToolCall = func(name string, args map[string]any) {
		fmt.Printf("\n  \033[33m⚡ Tool: %s\033[0m\n", agent.FormatToolCall(name, args))
	}
	a.OnToolResult = func(name string, result string) {
		// Show first few lines of result
		lines := strings.Split(strings.TrimSpace(result), "\n")
		preview := lines
		if len(preview) > 8 {
			preview = preview[:8]
		}
		for _, line := range preview {
			fmt.Printf("  \033[90m│ %s\033[0m\n", line)
		}
		if len(lines) > 8 {
			fmt.Printf("  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-8)
		}
		fmt.Println()
	}

	// Set up readline for input with history
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     "/tmp/herald_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Per-request cancellation: Ctrl+C cancels the active LLM request,
	// not the whole app. A second Ctrl+C while idle exits.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Handle slash commands
		if strings.HasPrefix(input, "/") {
			if handleCommand(input, a, setup) {
				continue
			}
		}

		// Create a per-request context so Ctrl+C only cancels this request
		reqCtx, cancel := context.WithCancel(context.Background())
		reqCancel = cancel

		if err := setup.Checker.Check(reqCtx, "input", input); err != nil {
			cancel()
			reqCancel = nil
			fmt.Printf("\n\033[31m%s\033[0m\n\n", err)
			continue
		}

		if sess.Title == "" {
			sess.Title = generateTitle(input)
			store.UpdateSession(context.Background(), sess)
		}

		// Run the agent with streaming output
		fmt.Printf("\n\033[32mherald>\033[0m ")
		response, err := a.SendStreaming(reqCtx, input)
		wasInterrupted := reqCtx.Err() != nil
		cancel()
		reqCancel = nil

		// Persist whatever the turn produced, even on failure.
		if saveErr := store.SaveTranscript(context.Background(), sess.ID, a.History()); saveErr != nil {
			warnf("Warning: saving transcript: %v\n", saveErr)
		}

		if err != nil {
			if wasInterrupted {
				fmt.Println("\n(interrupted)")
				continue
			}
			fmt.Printf("\n\033[31merror: %s\033[0m\n\n", err)
			continue
		}

		// The deltas already streamed; flag the final answer if the
		// output guardrail rejects it.
		if blockErr := setup.Checker.Check(context.Background(), "output", response); blockErr != nil {
			fmt.Printf("\n\033[31m%s\033[0m\n", blockErr)
		}

		fmt.Printf("\n\n")
	}
}

func handleCommand(input string, a *agent.Agent, setup *agentSetup) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "/reset":
		a.Reset()
		fmt.Println("Conversation reset.")
		fmt.Println()
	case "/history":
		fmt.Println(a.HistoryJSON())
		fmt.Println()
	case "/tools":
		defs := a.ToolDefs()
		if len(defs) == 0 {
			fmt.Println("No tools available.")
		}
		for _, def := range defs {
			fmt.Printf("  %-20s %s\n", def.Name, def.Description)
		}
		fmt.Println()
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /reset    - Clear conversation history")
		fmt.Println("  /history  - Show raw conversation history (JSON)")
		fmt.Println("  /tools    - List available tools")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return true
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
