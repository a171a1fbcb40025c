package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/captainphantasy/floyd-core/internal/agent"
	"github.com/captainphantasy/floyd-core/internal/permissions"
	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/spf13/cobra"
)

// buildChatCmd returns the interactive REPL that drives the Agent Engine
// end to end, reading lines from stdin with a bufio.Reader.
func buildChatCmd() *cobra.Command {
	var sessionID string
	var title string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := bootstrap(ctx, workspaceFlag, modelFlag)
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := resolveSession(ctx, app, sessionID, title)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s — %s (ctrl-d to exit)\n", session.ID, app.workspace)

			reader := bufio.NewReader(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				line, err := reader.ReadString('\n')
				if err != nil {
					fmt.Fprintln(out)
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if err := runTurn(ctx, app, session, line, out); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session by ID")
	cmd.Flags().StringVar(&title, "title", "", "Title for a newly created session")
	return cmd
}

func resolveSession(ctx context.Context, app *appContext, sessionID, title string) (*model.Session, error) {
	if sessionID != "" {
		return app.store.Load(ctx, sessionID)
	}
	return app.store.Create(ctx, app.workspace, title)
}

// runTurn drives one SendMessage call to completion, printing streamed
// tokens as they arrive and prompting on the terminal for any tool call the
// Permission Manager classifies as "ask" (spec §6's external permission
// prompt collaborator).
func runTurn(ctx context.Context, app *appContext, session *model.Session, text string, out io.Writer) error {
	prompt := termPermissionPrompt(out)
	callbacks := &agent.Callbacks{
		OnToolStart: func(r model.ToolCallRecord) {
			fmt.Fprintf(out, "\n[tool] %s %s\n", r.Name, string(r.Arguments))
		},
		OnToolComplete: func(r model.ToolCallRecord) {
			if r.Status == model.ToolCallFailed {
				fmt.Fprintf(out, "[tool] %s failed: %s\n", r.Name, r.Err)
			} else {
				fmt.Fprintf(out, "[tool] %s done\n", r.Name)
			}
		},
		OnError: func(err error) {
			fmt.Fprintf(out, "\n[error] %v\n", err)
		},
	}

	tokens, err := app.engine.SendMessage(ctx, session, text, prompt, callbacks)
	if err != nil {
		return err
	}
	for tok := range tokens {
		fmt.Fprint(out, tok)
	}
	fmt.Fprintln(out)
	return nil
}

// termPermissionPrompt builds a PermissionPrompt that asks the operator on
// the terminal for confirmation before a risky tool call runs.
func termPermissionPrompt(out io.Writer) func(ctx context.Context, toolName string, risk permissions.RiskLevel, args json.RawMessage) (model.Decision, model.Scope, error) {
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, toolName string, risk permissions.RiskLevel, args json.RawMessage) (model.Decision, model.Scope, error) {
		fmt.Fprintf(out, "\npermission requested: %s (risk: %s) args=%s\nallow once [o], allow session [s], allow always [a], deny [n]? ", toolName, risk, string(args))
		line, err := reader.ReadString('\n')
		if err != nil {
			return model.DecisionDeny, model.ScopeOnce, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "o", "":
			return model.DecisionAllow, model.ScopeOnce, nil
		case "s":
			return model.DecisionAllow, model.ScopeSession, nil
		case "a":
			return model.DecisionAllow, model.ScopePersistent, nil
		default:
			return model.DecisionDeny, model.ScopeOnce, nil
		}
	}
}
