package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matt-kaep/WI-frontend/dashboard"
	"github.com/matt-kaep/WI-frontend/models"
)

var (
	uploadLinkedInURL string
	uploadWait        bool
	statusWait        bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the selected session's counters and processing status",
	RunE:  runDashboardStatus,
}

var dashboardStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show counters and processing status",
	RunE:  runDashboardStatus,
}

var dashboardUploadCmd = &cobra.Command{
	Use:   "upload <connections.csv>",
	Short: "Upload a LinkedIn connections export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cli.requireSession(); err != nil {
			return err
		}
		view := newDashboardView()

		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		result, err := view.Upload(cmd.Context(), dashboard.Upload{
			FileName:    filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			LinkedInURL: uploadLinkedInURL,
			File:        f,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d connections, %d profiles\n", result.ConnectionCount, result.ProfileCount)

		if uploadWait {
			view.Wait()
		} else {
			view.StopPolling()
		}
		printDashboard(cmd, view)
		return nil
	},
}

func init() {
	dashboardUploadCmd.Flags().StringVar(&uploadLinkedInURL, "linkedin-url", "", "Your own LinkedIn profile URL")
	dashboardUploadCmd.Flags().BoolVar(&uploadWait, "wait", true, "Wait until processing finishes")
	dashboardStatusCmd.Flags().BoolVar(&statusWait, "wait", false, "Wait until processing finishes")
	dashboardCmd.AddCommand(dashboardStatusCmd, dashboardUploadCmd)
}

func newDashboardView() *dashboard.View {
	return dashboard.NewView(cli.client, cli.sessions, cli.notices,
		dashboard.WithPollInterval(cli.cfg.GetStatusPollInterval()),
		dashboard.WithMetrics(cli.metrics),
	)
}

func runDashboardStatus(cmd *cobra.Command, args []string) error {
	if _, err := cli.requireSession(); err != nil {
		return err
	}
	view := newDashboardView()
	err := view.Refresh(cmd.Context())
	if statusWait {
		view.Wait()
	} else {
		view.StopPolling()
	}
	printDashboard(cmd, view)
	return err
}

func printDashboard(cmd *cobra.Command, view *dashboard.View) {
	out := cmd.OutOrStdout()
	current := cli.sessions.CurrentSession()
	if current != nil {
		fmt.Fprintf(out, "Session:     %s\n", current.Name)
	}
	if stats := view.Stats(); stats != nil {
		fmt.Fprintf(out, "Connections: %d\n", stats.ConnectionCount)
		fmt.Fprintf(out, "Profiles:    %d\n", stats.ProfileCount)
		fmt.Fprintf(out, "Prospects:   %d\n", stats.ProspectCount)
		if stats.FileName != "" {
			fmt.Fprintf(out, "File:        %s\n", stats.FileName)
		}
		if stats.LastActivity != "" {
			fmt.Fprintf(out, "Last update: %s\n", stats.LastActivity)
		}
	}
	if status := view.Status(); status != nil {
		fmt.Fprintf(out, "Status:      %s\n", describeStatus(status))
	}
}

func describeStatus(s *models.SessionStatus) string {
	text := string(s.Status)
	if s.Status.InProgress() && s.Progress != nil {
		text = fmt.Sprintf("%s (%.0f%%)", text, *s.Progress)
	}
	if s.Message != "" {
		text += ": " + s.Message
	}
	return text
}
