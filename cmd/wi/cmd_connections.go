package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matt-kaep/WI-frontend/connections"
	"github.com/matt-kaep/WI-frontend/models"
)

var (
	connectionsQuery     string
	connectionsFavorites bool
	connectionsRecompute bool
	connectionsLimit     int
)

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List the selected session's connections, best match first",
	RunE:  runConnectionsList,
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connections, best match first",
	RunE:  runConnectionsList,
}

var connectionsFavoriteCmd = &cobra.Command{
	Use:   "favorite <connection-id>",
	Short: "Add or remove a connection from favorites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid connection id %q", args[0])
		}
		view, err := loadConnections(cmd)
		if err != nil {
			return err
		}
		return view.ToggleFavorite(cmd.Context(), id)
	},
}

var connectionsFavoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List favorite connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cli.requireSession(); err != nil {
			return err
		}
		view := connections.NewView(cli.client, cli.sessions, cli.notices)
		favorites, err := view.Favorites(cmd.Context())
		if err != nil {
			return err
		}
		return printConnections(cmd.OutOrStdout(), favorites, nil)
	},
}

var connectionsSelectCmd = &cobra.Command{
	Use:   "select <profile-id>...",
	Short: "Select or deselect profiles to search prospects through",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cli.requireSession(); err != nil {
			return err
		}
		view := connections.NewView(cli.client, cli.sessions, cli.notices)
		for _, id := range args {
			if err := view.ToggleProfile(id); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d profiles selected\n", len(view.Selected()))
		return nil
	},
}

var connectionsSelectAllCmd = &cobra.Command{
	Use:   "select-all",
	Short: "Select every listed profile, or clear the selection when all are selected",
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := loadConnections(cmd)
		if err != nil {
			return err
		}
		if err := view.ToggleAllVisible(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d profiles selected\n", len(view.Selected()))
		return nil
	},
}

var connectionsAddCmd = &cobra.Command{
	Use:   "add <linkedin-url>",
	Short: "Add a connection from its LinkedIn profile URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cli.requireSession(); err != nil {
			return err
		}
		view := connections.NewView(cli.client, cli.sessions, cli.notices)
		result, err := view.AddByURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", result.ConnectionDetails.Name, result.ConnectionDetails.ProfileID)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{connectionsCmd, connectionsListCmd, connectionsSelectAllCmd} {
		c.Flags().StringVarP(&connectionsQuery, "search", "s", "", "Filter by name, title, location, industry, company or school")
		c.Flags().BoolVar(&connectionsFavorites, "favorites", false, "Only favorites")
		c.Flags().BoolVar(&connectionsRecompute, "recompute", false, "Score connections again (takes minutes)")
	}
	for _, c := range []*cobra.Command{connectionsCmd, connectionsListCmd} {
		c.Flags().IntVarP(&connectionsLimit, "limit", "n", 50, "Show at most this many rows (0 for all)")
	}
	connectionsCmd.AddCommand(connectionsListCmd, connectionsFavoriteCmd, connectionsFavoritesCmd,
		connectionsSelectCmd, connectionsSelectAllCmd, connectionsAddCmd)
}

func loadConnections(cmd *cobra.Command) (*connections.View, error) {
	if _, err := cli.requireSession(); err != nil {
		return nil, err
	}
	view := connections.NewView(cli.client, cli.sessions, cli.notices)
	load := view.Load
	if connectionsRecompute {
		load = view.Recompute
	}
	if err := load(cmd.Context()); err != nil {
		return nil, err
	}
	view.SetQuery(connectionsQuery)
	view.SetFavoritesOnly(connectionsFavorites)
	return view, nil
}

func runConnectionsList(cmd *cobra.Command, args []string) error {
	view, err := loadConnections(cmd)
	if err != nil {
		return err
	}
	visible := view.Visible()
	total := len(visible)
	if connectionsLimit > 0 && total > connectionsLimit {
		visible = visible[:connectionsLimit]
	}
	if err := printConnections(cmd.OutOrStdout(), visible, view.Selected()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d connections, %d selected\n", len(visible), total, len(view.Selected()))
	return nil
}

func printConnections(out io.Writer, list []models.Connection, selected []string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tPROFILE\tNAME\tTITLE\tLOCATION\tSCORE\tFAV")
	for _, c := range list {
		marker := ""
		if slices.Contains(selected, c.ProfileID) {
			marker = "x"
		}
		fav := ""
		if c.IsFavorite {
			fav = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			marker, c.ID, c.ProfileID, c.DisplayName(), c.Title, c.Location, c.OverallSimilarity*100, fav)
	}
	return w.Flush()
}
