// Package main provides the CLI entry point for the Floyd agent core: a
// terminal client that drives the Agent Engine through a real LLM
// provider and the MCP tool surface.
//
// # Basic Usage
//
// Start an interactive chat session in the current workspace:
//
//	floyd chat
//
// Initialize a workspace's .floyd/ config:
//
//	floyd setup
//
// Inspect MCP servers and permission rules:
//
//	floyd mcp servers
//	floyd permissions list
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - FLOYD_WORKSPACE: Workspace directory (default: current directory)
//   - FLOYD_MODEL: Default model ID (default: claude-sonnet-4-5)
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	workspaceFlag string
	modelFlag     string
	verboseFlag   bool
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "floyd",
		Short: "Floyd - multi-surface AI coding assistant core",
		Long: `Floyd drives a conversation through the Agent Engine: an LLM Client
Facade, an MCP tool surface, and a permission layer that gates what the
model is allowed to do to the workspace.`,
		Version:      versionString(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", defaultWorkspace(), "Workspace directory (.floyd/ lives here)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", defaultModel(), "Model ID to drive the conversation")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	cobra.OnInitialize(func() {
		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	})

	rootCmd.AddCommand(
		buildChatCmd(),
		buildSessionsCmd(),
		buildPermissionsCmd(),
		buildMCPCmd(),
		buildSetupCmd(),
	)
	return rootCmd
}

func versionString() string {
	return version + " (commit: " + commit + ", built: " + date + ")"
}

func defaultWorkspace() string {
	if ws := os.Getenv("FLOYD_WORKSPACE"); ws != "" {
		return ws
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func defaultModel() string {
	if m := os.Getenv("FLOYD_MODEL"); m != "" {
		return m
	}
	return "claude-sonnet-4-5"
}
