package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultMCPConfig = `{
  "version": 1,
  "servers": []
}
`

// buildSetupCmd bootstraps a workspace's .floyd/ directory by writing
// starter config files rather than requiring the user to hand-author them.
// There is no interactive onboarding wizard — this writes conservative
// empty defaults and lets `floyd permissions grant` and hand-editing
// .floyd/mcp.json fill them in.
func buildSetupCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Initialize this workspace's .floyd/ directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := floydDir(workspaceFlag)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}

			out := cmd.OutOrStdout()
			if err := writeIfAbsent(filepath.Join(dir, "mcp.json"), []byte(defaultMCPConfig), force); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", filepath.Join(dir, "mcp.json"))

			permDoc, err := json.MarshalIndent(map[string]any{
				"version":   1,
				"decisions": map[string]any{},
			}, "", "  ")
			if err != nil {
				return err
			}
			if err := writeIfAbsent(filepath.Join(dir, "permissions.json"), permDoc, force); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", filepath.Join(dir, "permissions.json"))

			sessionsDir := filepath.Join(dir, "sessions")
			if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", sessionsDir, err)
			}
			fmt.Fprintf(out, "ready: %s\n", dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config files")
	return cmd
}

func writeIfAbsent(path string, content []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	return os.WriteFile(path, content, 0o644)
}
