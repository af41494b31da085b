package prospects

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/models"
)

var exportHeader = []string{
	"Name",
	"Title",
	"Location",
	"Similarity score (%)",
	"Shared companies count",
	"Shared schools count",
	"Shared companies",
	"Shared schools",
	"LinkedIn URL",
	"Connected via (ID)",
}

// ExportFileName is the name an export made at t is saved under.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("prospects_%s.csv", t.UTC().Format(time.DateOnly))
}

// ExportCSV writes the current results to w.
func (v *View) ExportCSV(w io.Writer) error {
	return WriteCSV(w, v.Prospects())
}

// WriteCSV writes one header row and one row per prospect.
func WriteCSV(w io.Writer, list []models.Prospect) error {
	if len(list) == 0 {
		return apperrors.ErrNothingToExport
	}

	rows := make([][]string, 0, len(list)+1)
	rows = append(rows, exportHeader)
	for _, p := range list {
		rows = append(rows, []string{
			p.Name,
			p.Title,
			p.Location,
			strconv.Itoa(int(math.Round(p.OverallSimilarity * 100))),
			strconv.Itoa(p.SharedCompaniesCount),
			strconv.Itoa(p.SharedSchoolsCount),
			joinNames(p.SharedCompanies),
			joinNames(p.SharedSchools),
			p.ProfileURL,
			p.FocusProfileID,
		})
	}

	if err := csv.NewWriter(w).WriteAll(rows); err != nil {
		return fmt.Errorf("[Prospects Export] failed to write csv: %w", err)
	}
	return nil
}

func joinNames(list []models.SharedEntity) string {
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name)
	}
	return strings.Join(names, "; ")
}
