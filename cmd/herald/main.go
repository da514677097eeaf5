package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	providerFlag string
	modelFlag    string
	profileFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Herald - tool-calling chat agent with guardrails",
	Long: `Herald is a chat agent over OpenAI-compatible completion APIs
(OpenAI, Inception Labs Mercury) with a tool-calling loop, optional
content-moderation guardrails, and persistent sessions.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "Completion provider (openai, inception)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Agent profile to use")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
