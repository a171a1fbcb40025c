package main

import (
	"fmt"
	"sort"

	"github.com/captainphantasy/floyd-core/internal/permissions"
	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/spf13/cobra"
)

// buildPermissionsCmd returns the `permissions` command group for
// inspecting and editing the persisted rule set outside of the interactive
// prompt flow.
func buildPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect and edit persisted permission rules",
	}
	cmd.AddCommand(buildPermissionsListCmd(), buildPermissionsGrantCmd(), buildPermissionsRevokeCmd())
	return cmd
}

func buildPermissionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted permission rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := permissions.NewFileStore(workspaceFlag, nil)
			rules, err := store.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rules) == 0 {
				fmt.Fprintln(out, "no persisted rules")
				return nil
			}
			keys := make([]string, 0, len(rules))
			for k := range rules {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				r := rules[k]
				fmt.Fprintf(out, "%s\t%s\t%s\n", k, r.Decision, r.Scope)
			}
			return nil
		},
	}
}

func buildPermissionsGrantCmd() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "grant <tool-or-pattern>",
		Short: "Persistently allow a tool or pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := permissions.NewManager(permissions.NewFileStore(workspaceFlag, nil), workspaceFlag, nil)
			mgr.Record(args[0], model.DecisionAllow, model.Scope(scope))
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s (%s)\n", args[0], scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", string(model.ScopePersistent), "once|session|persistent")
	return cmd
}

func buildPermissionsRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <tool-or-pattern>",
		Short: "Persistently deny a tool or pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := permissions.NewManager(permissions.NewFileStore(workspaceFlag, nil), workspaceFlag, nil)
			mgr.Record(args[0], model.DecisionDeny, model.ScopePersistent)
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}
