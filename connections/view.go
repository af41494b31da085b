// Package connections is the view model behind the connections page. It
// keeps the loaded list, the search and favorites filters, and writes the
// selected profile ids back onto the current work session.
package connections

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/matt-kaep/WI-frontend/api"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/notice"
	"github.com/matt-kaep/WI-frontend/validation"
)

// Backend is the part of the API client the view calls.
type Backend interface {
	ExistingConnections(ctx context.Context) ([]models.Connection, error)
	RecomputeConnections(ctx context.Context, minSimilarity float64, maxResults int) ([]models.Connection, error)
	FavoriteConnections(ctx context.Context) ([]models.Connection, error)
	ToggleFavorite(ctx context.Context, connectionID int64) (bool, error)
	InsertConnection(ctx context.Context, linkedInURL string) (*models.NewConnectionResult, error)
}

// SessionSource gives access to the selected work session.
type SessionSource interface {
	CurrentSession() *models.WorkSession
	UpdateSession(s models.WorkSession)
}

type View struct {
	backend   Backend
	sessions  SessionSource
	notices   *notice.Board
	validator *validation.Validator

	mu            sync.Mutex
	all           []models.Connection
	query         string
	favoritesOnly bool
	loading       bool
	err           error
}

func NewView(backend Backend, sessions SessionSource, notices *notice.Board) *View {
	return &View{
		backend:   backend,
		sessions:  sessions,
		notices:   notices,
		validator: validation.NewValidator(),
	}
}

// Load fetches the connections computed earlier for the current session.
func (v *View) Load(ctx context.Context) error {
	return v.fetch(ctx, "[Connections Load]", v.backend.ExistingConnections)
}

// Recompute asks the backend to score every connection again. It takes
// minutes, so an info notice is posted before the call.
func (v *View) Recompute(ctx context.Context) error {
	v.notices.Post(notice.Info, "Computing connections, this can take 2 to 5 minutes")
	err := v.fetch(ctx, "[Connections Recompute]", func(ctx context.Context) ([]models.Connection, error) {
		return v.backend.RecomputeConnections(ctx, api.DefaultMinSimilarity, api.DefaultMaxResults)
	})
	if err != nil {
		v.notices.Post(notice.Error, err.Error())
		return err
	}
	v.notices.Post(notice.Success, fmt.Sprintf("%d connections computed", len(v.All())))
	return nil
}

func (v *View) fetch(ctx context.Context, op string, call func(context.Context) ([]models.Connection, error)) error {
	if v.sessions.CurrentSession() == nil {
		return apperrors.Wrapf(apperrors.ErrNoActiveSession, "%s", op)
	}

	v.mu.Lock()
	v.loading = true
	v.err = nil
	v.mu.Unlock()

	list, err := call(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	if err != nil {
		log.Error().Err(err).Msgf("%s failed to load connections", op)
		v.err = err
		return err
	}
	v.all = SortBySimilarity(list)
	return nil
}

// Favorites returns the connections marked as favorite on the server.
func (v *View) Favorites(ctx context.Context) ([]models.Connection, error) {
	list, err := v.backend.FavoriteConnections(ctx)
	if err != nil {
		return nil, err
	}
	return SortBySimilarity(list), nil
}

func (v *View) SetQuery(q string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = q
}

func (v *View) SetFavoritesOnly(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.favoritesOnly = on
}

// All returns every loaded connection, best match first.
func (v *View) All() []models.Connection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.all)
}

// Visible applies the search query and the favorites filter.
func (v *View) Visible() []models.Connection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Filter(v.all, v.query, v.favoritesOnly)
}

func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// ToggleFavorite flips the favorite flag and merges the server's answer
// into the loaded list.
func (v *View) ToggleFavorite(ctx context.Context, connectionID int64) error {
	favorite, err := v.backend.ToggleFavorite(ctx, connectionID)
	if err != nil {
		log.Error().Err(err).Int64("connection_id", connectionID).Msg("[Connections ToggleFavorite] failed")
		v.notices.Post(notice.Error, err.Error())
		return err
	}

	v.mu.Lock()
	name := ""
	for i := range v.all {
		if v.all[i].ID == connectionID {
			v.all[i].IsFavorite = favorite
			name = v.all[i].DisplayName()
		}
	}
	v.mu.Unlock()

	if favorite {
		v.notices.Post(notice.Success, fmt.Sprintf("%s added to favorites", name))
	} else {
		v.notices.Post(notice.Success, fmt.Sprintf("%s removed from favorites", name))
	}
	return nil
}

// Selected returns the profile ids stored on the current session.
func (v *View) Selected() []string {
	s := v.sessions.CurrentSession()
	if s == nil {
		return nil
	}
	return s.SelectedProfiles
}

// ToggleProfile adds or removes one profile id from the session selection.
func (v *View) ToggleProfile(profileID string) error {
	s := v.sessions.CurrentSession()
	if s == nil {
		return apperrors.Wrapf(apperrors.ErrNoActiveSession, "[Connections ToggleProfile]")
	}
	selected := slices.Clone(s.SelectedProfiles)
	if i := slices.Index(selected, profileID); i >= 0 {
		selected = slices.Delete(selected, i, i+1)
	} else {
		selected = append(selected, profileID)
	}
	v.saveSelection(*s, selected)
	return nil
}

// ToggleAllVisible clears the selection when every visible profile is
// already selected, otherwise it selects all visible profiles.
func (v *View) ToggleAllVisible() error {
	s := v.sessions.CurrentSession()
	if s == nil {
		return apperrors.Wrapf(apperrors.ErrNoActiveSession, "[Connections ToggleAllVisible]")
	}
	visible := v.Visible()
	if len(s.SelectedProfiles) == len(visible) && len(visible) > 0 {
		v.saveSelection(*s, []string{})
		return nil
	}
	selected := make([]string, 0, len(visible))
	for _, c := range visible {
		if c.ProfileID != "" {
			selected = append(selected, c.ProfileID)
		}
	}
	v.saveSelection(*s, selected)
	return nil
}

func (v *View) saveSelection(s models.WorkSession, selected []string) {
	if selected == nil {
		selected = []string{}
	}
	s.SelectedProfiles = selected
	v.sessions.UpdateSession(s)
}

// AddByURL inserts a connection from its LinkedIn profile URL and
// reloads the list.
func (v *View) AddByURL(ctx context.Context, linkedInURL string) (*models.NewConnectionResult, error) {
	if err := v.validator.ValidateLinkedInURL(linkedInURL); err != nil {
		return nil, err
	}
	result, err := v.backend.InsertConnection(ctx, strings.TrimSpace(linkedInURL))
	if err != nil {
		log.Error().Err(err).Msg("[Connections AddByURL] failed to insert connection")
		v.notices.Post(notice.Error, err.Error())
		return nil, err
	}

	name := result.ConnectionDetails.Name
	if name == "" {
		name = "Connection"
	}
	v.notices.Post(notice.Success, fmt.Sprintf("%s added", name))

	if err := v.Load(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// SortBySimilarity returns a copy sorted by overall similarity, best first.
// Ties keep their server order.
func SortBySimilarity(list []models.Connection) []models.Connection {
	out := slices.Clone(list)
	slices.SortStableFunc(out, func(a, b models.Connection) int {
		return cmp.Compare(b.OverallSimilarity, a.OverallSimilarity)
	})
	return out
}

// Filter keeps the connections matching query, case-insensitively, over
// name, title, location, industry and shared companies or schools.
func Filter(list []models.Connection, query string, favoritesOnly bool) []models.Connection {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Connection, 0, len(list))
	for _, c := range list {
		if favoritesOnly && !c.IsFavorite {
			continue
		}
		if q != "" && !matches(c, q) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matches(c models.Connection, q string) bool {
	fields := []string{c.DisplayName(), c.Title, c.Location, c.Industry}
	for _, e := range c.SharedCompanies {
		fields = append(fields, e.Name)
	}
	for _, e := range c.SharedSchools {
		fields = append(fields, e.Name)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
