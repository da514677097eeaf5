package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwhitaker/herald/internal/config"
	"github.com/mwhitaker/herald/internal/guardrail"
)

var streamFlag bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Long: `Run one question through the agent without an interactive session.
The agent may still call tools while answering. Nothing is persisted.

Examples:
  herald ask "what is the current time in UTC?"
  herald ask --stream "summarize the files in /tmp"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&streamFlag, "stream", false, "Stream the answer as it is generated")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setup, err := buildAgent(cfg, warnf)
	if err != nil {
		return err
	}
	defer setup.Registry.Close()

	question := strings.Join(args, " ")
	ctx := context.Background()

	if streamFlag {
		setup.Agent.OnTextDelta = func(delta string) {
			fmt.Print(delta)
		}
		if err := setup.Checker.Check(ctx, "input", question); err != nil {
			return err
		}
		response, err := setup.Agent.SendStreaming(ctx, question)
		if err != nil {
			return err
		}
		if blockErr := setup.Checker.Check(ctx, "output", response); blockErr != nil {
			fmt.Printf("\n%s\n", blockErr)
			return nil
		}
		fmt.Println()
		return nil
	}

	sender := guardrail.Wrap(setup.Agent, setup.Checker)
	response, err := sender.Send(ctx, question)
	if err != nil {
		return err
	}

	fmt.Println(response)
	return nil
}
