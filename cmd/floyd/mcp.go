package main

import (
	"encoding/json"
	"fmt"

	"github.com/captainphantasy/floyd-core/internal/mcp"
	"github.com/spf13/cobra"
)

// buildMCPCmd returns the `mcp` command group for inspecting configured
// servers and calling tools directly.
func buildMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect and call MCP servers",
	}
	cmd.AddCommand(buildMCPServersCmd(), buildMCPToolsCmd(), buildMCPCallCmd())
	return cmd
}

func buildMCPServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured MCP server connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := mcp.NewManager()
			defer mgr.Close()
			mgr.LoadAndConnect(cmd.Context(), workspaceFlag)

			out := cmd.OutOrStdout()
			conns := mgr.Connections()
			if len(conns) == 0 {
				fmt.Fprintln(out, "no MCP servers configured")
				return nil
			}
			for _, c := range conns {
				fmt.Fprintf(out, "%s\t%s\t%s\ttools=%d\n", c.ID, c.Transport, c.Status, c.ToolCount)
			}
			return nil
		},
	}
}

func buildMCPToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tools aggregated across connected MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := mcp.NewManager()
			defer mgr.Close()
			mgr.LoadAndConnect(cmd.Context(), workspaceFlag)

			out := cmd.OutOrStdout()
			tools := mgr.ListTools()
			if len(tools) == 0 {
				fmt.Fprintln(out, "no tools available")
				return nil
			}
			for _, t := range tools {
				fmt.Fprintf(out, "%s\t%s\n", t.Name, t.Description)
			}
			return nil
		},
	}
}

func buildMCPCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> <json-args>",
		Short: "Call a tool directly, bypassing the Agent Engine and permission layer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := mcp.NewManager()
			defer mgr.Close()
			ctx := cmd.Context()
			mgr.LoadAndConnect(ctx, workspaceFlag)

			argJSON := "{}"
			if len(args) == 2 {
				argJSON = args[1]
			}
			var decoded json.RawMessage = json.RawMessage(argJSON)

			result, err := mgr.CallTool(ctx, args[0], decoded)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.String())
			return nil
		},
	}
}
