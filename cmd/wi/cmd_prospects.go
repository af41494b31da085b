package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/prospects"
)

var (
	prospectConnections string
	prospectLocation    string
	prospectJobTitle    string
	prospectCompanies   string
	prospectSchools     string
	prospectExperience  bool
	prospectEducation   bool
	prospectLimit       int
	prospectExport      string
)

var prospectsCmd = &cobra.Command{
	Use:   "prospects",
	Short: "Find prospects through your selected connections",
}

var prospectsSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search prospects (takes a few minutes)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cli.requireSession(); err != nil {
			return err
		}
		view := prospects.NewView(cli.client, cli.sessions, cli.notices)
		view.SetFilter(searchFilter(cmd, view.Filter()))

		if _, err := view.Search(cmd.Context()); err != nil {
			return err
		}
		view.LoadFocusProfiles(cmd.Context())
		return showProspects(cmd, view)
	},
}

var prospectsSavedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Show the prospects saved for the selected session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cli.requireSession(); err != nil {
			return err
		}
		view := prospects.NewView(cli.client, cli.sessions, cli.notices)
		if _, err := view.LoadSaved(cmd.Context()); err != nil {
			return err
		}
		view.LoadFocusProfiles(cmd.Context())
		return showProspects(cmd, view)
	},
}

var prospectsShowCmd = &cobra.Command{
	Use:   "show <profile-id>",
	Short: "Show a profile's experience and education",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.requireSignedIn(); err != nil {
			return err
		}
		view := prospects.NewView(cli.client, cli.sessions, cli.notices)
		resume, err := view.ProfileResume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printResume(cmd.OutOrStdout(), resume)
		return nil
	},
}

func init() {
	f := prospectsSearchCmd.Flags()
	f.StringVar(&prospectConnections, "connections", "", "Comma separated profile ids to search through (default: the selected profiles)")
	f.StringVar(&prospectLocation, "location", prospects.DefaultLocation, "Location filter")
	f.StringVar(&prospectJobTitle, "job-title", prospects.DefaultJobTitle, "Job title filter")
	f.StringVar(&prospectCompanies, "companies", "", "Comma separated companies to restrict to")
	f.StringVar(&prospectSchools, "schools", "", "Comma separated schools to restrict to")
	f.BoolVar(&prospectExperience, "experience", true, "Match on shared experience")
	f.BoolVar(&prospectEducation, "education", false, "Match on shared education")
	f.IntVar(&prospectLimit, "limit", prospects.DefaultLimit, "Maximum number of prospects")

	for _, c := range []*cobra.Command{prospectsSearchCmd, prospectsSavedCmd} {
		c.Flags().StringVar(&prospectExport, "export", "", "Write results as CSV to this file, or a directory for a dated name")
	}
	prospectsCmd.AddCommand(prospectsSearchCmd, prospectsSavedCmd, prospectsShowCmd)
}

// searchFilter overlays the flags the user set on the view's filter.
func searchFilter(cmd *cobra.Command, filter models.ProspectFilter) models.ProspectFilter {
	flags := cmd.Flags()
	if flags.Changed("connections") {
		filter.SelectedConnectionIDs = prospects.ParseList(prospectConnections)
	}
	filter.LocationFilter = strings.TrimSpace(prospectLocation)
	filter.JobTitleFilter = strings.TrimSpace(prospectJobTitle)
	filter.SpecificCompaniesFilter = prospects.ParseList(prospectCompanies)
	filter.SpecificSchoolsFilter = prospects.ParseList(prospectSchools)
	filter.UseExperience = prospectExperience
	filter.UseEducation = prospectEducation
	filter.Limit = prospectLimit
	return filter
}

func showProspects(cmd *cobra.Command, view *prospects.View) error {
	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, g := range view.Groups() {
		header := "Through " + view.FocusName(g.FocusProfileID)
		if _, err := view.FocusProfile(g.FocusProfileID); err != nil {
			header += " (profile unavailable: " + err.Error() + ")"
		}
		fmt.Fprintf(w, "%s\n", header)
		for _, p := range g.Prospects {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%.0f%%\t%d companies\t%d schools\n",
				p.Name, p.Title, p.Location, p.OverallSimilarity*100, p.SharedCompaniesCount, p.SharedSchoolsCount)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d prospects\n", len(view.Prospects()))

	if prospectExport == "" {
		return nil
	}
	return exportProspects(cmd, view, prospectExport)
}

func exportProspects(cmd *cobra.Command, view *prospects.View, target string) error {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, prospects.ExportFileName(time.Now()))
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if err := view.ExportCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", target)
	return nil
}

func printResume(out io.Writer, r *models.ProfileResume) {
	b := r.BasicInfo
	fmt.Fprintf(out, "%s\n", b.FullName)
	if b.CurrentTitle != "" || b.CurrentCompany != "" {
		fmt.Fprintf(out, "%s at %s\n", b.CurrentTitle, b.CurrentCompany)
	}
	if b.Location != "" {
		fmt.Fprintln(out, b.Location)
	}
	if b.ProfileURL != "" {
		fmt.Fprintln(out, b.ProfileURL)
	}

	if len(r.Experiences) > 0 {
		fmt.Fprintln(out, "\nExperience")
		for _, e := range r.Experiences {
			fmt.Fprintf(out, "  %s, %s  %s\n", e.Title, e.CompanyName, e.DateRange)
		}
	}
	if len(r.Education) > 0 {
		fmt.Fprintln(out, "\nEducation")
		for _, e := range r.Education {
			fmt.Fprintf(out, "  %s  %s %s  %s\n", e.SchoolName, e.Degree, e.FieldOfStudy, e.DateRange)
		}
	}
}
