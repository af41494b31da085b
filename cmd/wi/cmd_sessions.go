package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/internal/utils"
)

var sessionDescription string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage work sessions",
	Long: `List and manage work sessions. A work session holds one imported
connections export and everything computed from it.

Subcommands:
  list     - List your sessions
  create   - Create a session and select it
  use      - Select a session
  delete   - Delete a session`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your sessions",
	RunE:  runSessionsList,
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a session and select it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.requireSignedIn(); err != nil {
			return err
		}
		var description *string
		if sessionDescription != "" {
			description = utils.Ptr(sessionDescription)
		}
		created, err := cli.sessions.CreateSession(cmd.Context(), strings.Join(args, " "), description)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created session %q (%s)\n", created.Name, created.ID)
		if !created.IsActive {
			return fmt.Errorf("session created but could not be selected: %w", cli.sessions.Snapshot().Err)
		}
		return nil
	},
}

var sessionsUseCmd = &cobra.Command{
	Use:   "use <session-id>",
	Short: "Select a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.requireSignedIn(); err != nil {
			return err
		}
		id := args[0]
		cli.sessions.SetCurrentSessionByID(cmd.Context(), id)
		current := cli.sessions.CurrentSession()
		if current == nil || current.ID != id {
			if err := cli.sessions.Snapshot().Err; err != nil {
				return err
			}
			return fmt.Errorf("session '%s' not found, use `wi sessions list`: %w", id, apperrors.ErrSessionNotFound)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Using session %q\n", current.Name)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.requireSignedIn(); err != nil {
			return err
		}
		deleted, err := cli.sessions.DeleteSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("session '%s' was not deleted", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
		if current := cli.sessions.CurrentSession(); current != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Now using %q\n", current.Name)
		}
		return nil
	},
}

func init() {
	sessionsCreateCmd.Flags().StringVar(&sessionDescription, "description", "", "Optional description")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsCreateCmd, sessionsUseCmd, sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	if err := cli.requireSignedIn(); err != nil {
		return err
	}
	state := cli.sessions.Snapshot()
	if state.Err != nil {
		return state.Err
	}
	if len(state.Sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet. Use: wi sessions create <name>")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tCONNECTIONS\tPROFILES\tPROSPECTS\tCREATED")
	for _, s := range state.Sessions {
		marker := ""
		if s.IsActive {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			marker, s.ID, s.Name, s.ConnectionCount, s.ProfileCount, s.ProspectCount, s.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
