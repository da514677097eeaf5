package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mwhitaker/herald/internal/config"
	"github.com/mwhitaker/herald/internal/guardrail"
	"github.com/mwhitaker/herald/internal/server"
	"github.com/mwhitaker/herald/internal/tools"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Herald API server",
	Long: `Start the Herald HTTP server with REST session API and WebSocket chat.

Endpoints are under /api; each session gets a WebSocket at
/api/sessions/{id}/ws for streaming conversations.

Examples:
  herald serve
  herald serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	registry := tools.NewRegistry()
	defer registry.Close()

	tools.RegisterBuiltins(registry)
	for name, toolCfg := range cfg.Tools {
		if err := registry.RegisterServer(name, toolCfg); err != nil {
			log.Printf("Warning: failed to start tool server %s: %v", name, err)
		}
	}
	log.Printf("Tools: %d available", len(registry.Defs()))

	checker := newChecker(cfg, func(format string, args ...any) {
		log.Printf(format, args...)
	})
	if mode := cfg.GuardrailMode(); mode != guardrail.ModeOff {
		log.Printf("Guardrails: %s (%s)", cfg.Guardrails.Model, mode)
	}

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(cfg, store, registry, checker)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	return srv.Start(port)
}
