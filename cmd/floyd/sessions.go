package main

import (
	"fmt"

	"github.com/captainphantasy/floyd-core/internal/sessions"
	"github.com/spf13/cobra"
)

// buildSessionsCmd returns the `sessions` command group for listing,
// showing, and deleting persisted conversations.
func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage persisted sessions",
	}
	cmd.AddCommand(buildSessionsListCmd(), buildSessionsShowCmd(), buildSessionsDeleteCmd())
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := sessions.NewFileStore(workspaceFlag, nil)
			list, err := store.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no sessions")
				return nil
			}
			for _, s := range list {
				title := s.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Fprintf(out, "%s\t%s\t%d messages\t%s\n", s.ID, title, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func buildSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := sessions.NewFileStore(workspaceFlag, nil)
			session, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, msg := range session.Messages {
				fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Text())
			}
			return nil
		},
	}
}

func buildSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := sessions.NewFileStore(workspaceFlag, nil)
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
