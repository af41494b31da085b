// Package prospects is the view model behind the prospects page: search
// filters, the find then score pipeline, grouping by the connection a
// prospect was found through, and CSV export.
package prospects

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/notice"
	"github.com/matt-kaep/WI-frontend/validation"
)

const (
	DefaultLocation = "France OR Paris"
	DefaultJobTitle = "Sales OR Marketing"
	DefaultLimit    = 150

	// resumeFetchLimit bounds concurrent profile resume requests.
	resumeFetchLimit = 4
)

type Backend interface {
	FindProspects(ctx context.Context, filter models.ProspectFilter) ([]models.Prospect, error)
	ComputeProspectConnections(ctx context.Context, prospects []models.Prospect) ([]models.Prospect, error)
	ProfileResume(ctx context.Context, profileID string) (*models.ProfileResume, error)
	SessionProspects(ctx context.Context, sessionID string) ([]models.Prospect, error)
}

// SessionSource gives access to the selected work session.
type SessionSource interface {
	CurrentSession() *models.WorkSession
	UpdateSession(s models.WorkSession)
}

// DefaultFilter returns the filter the page opens with.
func DefaultFilter() models.ProspectFilter {
	return models.ProspectFilter{
		SelectedConnectionIDs: []string{},
		LocationFilter:        DefaultLocation,
		JobTitleFilter:        DefaultJobTitle,
		UseExperience:         true,
		UseEducation:          false,
		Limit:                 DefaultLimit,
	}
}

// Group is the prospects found through one of the user's connections.
type Group struct {
	FocusProfileID string
	Prospects      []models.Prospect
}

type View struct {
	backend   Backend
	sessions  SessionSource
	notices   *notice.Board
	validator *validation.Validator

	mu         sync.Mutex
	filter     models.ProspectFilter
	prospects  []models.Prospect
	resumes    map[string]*models.ProfileResume
	resumeErrs map[string]error
	loading    bool
	err        error
}

func NewView(backend Backend, sessions SessionSource, notices *notice.Board) *View {
	v := &View{
		backend:    backend,
		sessions:   sessions,
		notices:    notices,
		validator:  validation.NewValidator(),
		filter:     DefaultFilter(),
		resumes:    make(map[string]*models.ProfileResume),
		resumeErrs: make(map[string]error),
	}
	v.SeedFromSession()
	return v
}

// SeedFromSession copies the profiles selected on the connections page
// into the filter.
func (v *View) SeedFromSession() {
	s := v.sessions.CurrentSession()
	if s == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter.SelectedConnectionIDs = slices.Clone(s.SelectedProfiles)
	if v.filter.SelectedConnectionIDs == nil {
		v.filter.SelectedConnectionIDs = []string{}
	}
}

func (v *View) Filter() models.ProspectFilter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneFilter(v.filter)
}

func (v *View) SetFilter(f models.ProspectFilter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = cloneFilter(f)
}

// Search validates the filter, finds prospects, scores them against their
// focus profile and stores them best first. The session's prospect count
// is patched locally with the number of results.
func (v *View) Search(ctx context.Context) ([]models.Prospect, error) {
	session := v.sessions.CurrentSession()
	if session == nil {
		return nil, v.fail(apperrors.Wrapf(apperrors.ErrNoActiveSession, "[Prospects Search]"))
	}
	filter := v.Filter()
	if err := v.validator.ValidateProspectFilter(filter); err != nil {
		return nil, v.fail(err)
	}

	v.mu.Lock()
	v.loading = true
	v.err = nil
	v.prospects = nil
	v.resumes = make(map[string]*models.ProfileResume)
	v.resumeErrs = make(map[string]error)
	v.mu.Unlock()
	defer v.setLoading(false)

	v.notices.Post(notice.Info, "Searching for prospects, this can take 2 to 3 minutes")

	found, err := v.backend.FindProspects(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("[Prospects Search] failed to find prospects")
		return nil, v.fail(err)
	}
	if len(found) == 0 {
		return nil, v.fail(apperrors.ErrNoProspectsFound)
	}

	scored, err := v.backend.ComputeProspectConnections(ctx, found)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("[Prospects Search] failed to compute prospect connections")
		return nil, v.fail(err)
	}
	sorted := SortBySimilarity(scored)

	v.mu.Lock()
	v.prospects = sorted
	v.mu.Unlock()

	s := *session
	s.ProspectCount = len(sorted)
	v.sessions.UpdateSession(s)

	v.notices.Post(notice.Success, fmt.Sprintf("%d prospects found", len(sorted)))
	return slices.Clone(sorted), nil
}

// LoadSaved replaces the results with the prospects stored for the
// current session.
func (v *View) LoadSaved(ctx context.Context) ([]models.Prospect, error) {
	session := v.sessions.CurrentSession()
	if session == nil {
		return nil, apperrors.Wrapf(apperrors.ErrNoActiveSession, "[Prospects LoadSaved]")
	}
	saved, err := v.backend.SessionProspects(ctx, session.ID)
	if err != nil {
		return nil, v.fail(err)
	}
	sorted := SortBySimilarity(saved)
	v.mu.Lock()
	v.prospects = sorted
	v.mu.Unlock()
	return slices.Clone(sorted), nil
}

func (v *View) Prospects() []models.Prospect {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.prospects)
}

// Groups splits the results by focus profile. Groups come in the order
// their best prospect appears and each group is sorted best first.
func (v *View) Groups() []Group {
	return GroupByFocusProfile(v.Prospects())
}

// LoadFocusProfiles fetches the resume of every focus profile that is not
// loaded yet. A failure is recorded for its profile only.
func (v *View) LoadFocusProfiles(ctx context.Context) {
	var ids []string
	v.mu.Lock()
	for _, g := range GroupByFocusProfile(v.prospects) {
		if g.FocusProfileID == "" || v.resumes[g.FocusProfileID] != nil {
			continue
		}
		ids = append(ids, g.FocusProfileID)
	}
	v.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resumeFetchLimit)
	for _, id := range ids {
		g.Go(func() error {
			resume, err := v.ProfileResume(gctx, id)

			v.mu.Lock()
			defer v.mu.Unlock()
			if err != nil {
				log.Error().Err(err).Str("profile_id", id).Msg("[Prospects LoadFocusProfiles] failed to load profile")
				v.resumeErrs[id] = err
				return nil
			}
			delete(v.resumeErrs, id)
			v.resumes[id] = resume
			return nil
		})
	}
	_ = g.Wait()
}

// FocusProfile returns the loaded resume of a focus profile, or the error
// its fetch failed with.
func (v *View) FocusProfile(profileID string) (*models.ProfileResume, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resumes[profileID], v.resumeErrs[profileID]
}

// ProfileResume fetches a resume and rejects one without basic info.
func (v *View) ProfileResume(ctx context.Context, profileID string) (*models.ProfileResume, error) {
	resume, err := v.backend.ProfileResume(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if resume == nil || resume.BasicInfo == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidProfileData, "[Prospects ProfileResume] profile %s", profileID)
	}
	if resume.Experiences == nil {
		resume.Experiences = []models.Experience{}
	}
	if resume.Education == nil {
		resume.Education = []models.Education{}
	}
	return resume, nil
}

// FocusName returns the full name of a focus profile when its resume is
// loaded, else its id.
func (v *View) FocusName(profileID string) string {
	resume, _ := v.FocusProfile(profileID)
	if resume != nil && resume.BasicInfo != nil && resume.BasicInfo.FullName != "" {
		return resume.BasicInfo.FullName
	}
	return profileID
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

func (v *View) fail(err error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
	return err
}

func (v *View) setLoading(loading bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = loading
}

// SortBySimilarity returns a copy sorted by overall similarity, best first.
func SortBySimilarity(list []models.Prospect) []models.Prospect {
	out := slices.Clone(list)
	if out == nil {
		out = []models.Prospect{}
	}
	slices.SortStableFunc(out, func(a, b models.Prospect) int {
		return cmp.Compare(b.OverallSimilarity, a.OverallSimilarity)
	})
	return out
}

func GroupByFocusProfile(list []models.Prospect) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, p := range list {
		i, ok := index[p.FocusProfileID]
		if !ok {
			i = len(groups)
			index[p.FocusProfileID] = i
			groups = append(groups, Group{FocusProfileID: p.FocusProfileID})
		}
		groups[i].Prospects = append(groups[i].Prospects, p)
	}
	for i := range groups {
		groups[i].Prospects = SortBySimilarity(groups[i].Prospects)
	}
	return groups
}

// ParseList splits a comma separated filter value, dropping blanks.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func cloneFilter(f models.ProspectFilter) models.ProspectFilter {
	c := f
	c.SelectedConnectionIDs = slices.Clone(f.SelectedConnectionIDs)
	c.SpecificCompaniesFilter = slices.Clone(f.SpecificCompaniesFilter)
	c.SpecificSchoolsFilter = slices.Clone(f.SpecificSchoolsFilter)
	return c
}
