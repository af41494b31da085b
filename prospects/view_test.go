package prospects_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/matt-kaep/WI-frontend/api"
	"github.com/matt-kaep/WI-frontend/api/apifake"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/notice"
	"github.com/matt-kaep/WI-frontend/prospects"
)

type fakeSessions struct {
	mu      sync.Mutex
	current *models.WorkSession
}

func (f *fakeSessions) CurrentSession() *models.WorkSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	s := f.current.Clone()
	return &s
}

func (f *fakeSessions) UpdateSession(s models.WorkSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := s.Clone()
	f.current = &c
}

type testFixture struct {
	backend  *apifake.FakeBackend
	client   *api.Client
	sessions *fakeSessions
	notices  *notice.Board
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := apifake.New()
	t.Cleanup(backend.Close)

	client, err := api.New(backend.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-1"}))
	require.NoError(t, err)

	backend.AddSession(models.WorkSession{ID: "s1", Name: "Import"})
	backend.SetProspects([]models.Prospect{
		{ProfileID: "x1", FocusProfileID: "p1", Name: "Xavier"},
		{ProfileID: "x2", FocusProfileID: "p2", Name: "Yasmine"},
		{ProfileID: "x3", FocusProfileID: "p1", Name: "Zoe"},
		{ProfileID: "x4", FocusProfileID: "p9", Name: "Unselected"},
	})
	backend.SetScore("x1", 0.3)
	backend.SetScore("x2", 0.8)
	backend.SetScore("x3", 0.6)

	return &testFixture{
		backend: backend,
		client:  client,
		sessions: &fakeSessions{current: &models.WorkSession{
			ID:               "s1",
			Name:             "Import",
			SelectedProfiles: []string{"p1", "p2"},
		}},
		notices: notice.NewBoard(time.Minute),
	}
}

func (f *testFixture) view() *prospects.View {
	return prospects.NewView(f.client, f.sessions, f.notices)
}

func profileIDs(list []models.Prospect) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.ProfileID)
	}
	return out
}

func TestNewViewSeedsFilter(t *testing.T) {
	f := setupTestFixture(t)

	filter := f.view().Filter()
	assert.Equal(t, []string{"p1", "p2"}, filter.SelectedConnectionIDs)
	assert.Equal(t, "France OR Paris", filter.LocationFilter)
	assert.Equal(t, "Sales OR Marketing", filter.JobTitleFilter)
	assert.True(t, filter.UseExperience)
	assert.False(t, filter.UseEducation)
	assert.Equal(t, 150, filter.Limit)
}

func TestSearch(t *testing.T) {
	f := setupTestFixture(t)
	v := f.view()

	found, err := v.Search(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"x2", "x3", "x1"}, profileIDs(found))
	assert.Equal(t, 3, f.sessions.CurrentSession().ProspectCount)
	assert.False(t, v.Loading())

	filters := f.backend.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, []string{"p1", "p2"}, filters[0].SelectedConnectionIDs)
	assert.Equal(t, 150, filters[0].Limit)

	active := f.notices.Active()
	require.Len(t, active, 2)
	assert.Equal(t, notice.Info, active[0].Kind)
	assert.Equal(t, "3 prospects found", active[1].Message)
}

func TestSearchValidation(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *testFixture, v *prospects.View)
		wantErrs []error
	}{
		{
			name: "no session",
			setup: func(f *testFixture, v *prospects.View) {
				f.sessions.current = nil
			},
			wantErrs: []error{apperrors.ErrNoActiveSession},
		},
		{
			name: "nothing selected and blank title",
			setup: func(f *testFixture, v *prospects.View) {
				filter := v.Filter()
				filter.SelectedConnectionIDs = nil
				filter.JobTitleFilter = "  "
				v.SetFilter(filter)
			},
			wantErrs: []error{apperrors.ErrMissingConnections, apperrors.ErrMissingJobTitle},
		},
		{
			name: "blank title",
			setup: func(f *testFixture, v *prospects.View) {
				filter := v.Filter()
				filter.JobTitleFilter = ""
				v.SetFilter(filter)
			},
			wantErrs: []error{apperrors.ErrMissingJobTitle},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			v := f.view()
			tt.setup(f, v)

			_, err := v.Search(context.Background())
			for _, want := range tt.wantErrs {
				require.ErrorIs(t, err, want)
			}
			assert.Equal(t, err, v.Err())
			assert.Empty(t, f.backend.Requests())
		})
	}
}

func TestSearchNoResults(t *testing.T) {
	f := setupTestFixture(t)
	v := f.view()
	v.SetFilter(models.ProspectFilter{SelectedConnectionIDs: []string{"nobody"}, JobTitleFilter: "CEO"})

	_, err := v.Search(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNoProspectsFound)
	assert.Zero(t, f.backend.Count("POST /prospects-connections/"))
	assert.Equal(t, 0, f.sessions.CurrentSession().ProspectCount)
}

func TestSearchComputeFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.Fail("POST /prospects-connections/", apifake.Failure{Status: 500, Body: `{"message":"scoring failed"}`})
	v := f.view()

	_, err := v.Search(context.Background())
	require.EqualError(t, err, "scoring failed")
	assert.Empty(t, v.Prospects())
	assert.False(t, v.Loading())
}

func TestGroups(t *testing.T) {
	f := setupTestFixture(t)
	v := f.view()
	_, err := v.Search(context.Background())
	require.NoError(t, err)

	groups := v.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "p2", groups[0].FocusProfileID)
	assert.Equal(t, []string{"x2"}, profileIDs(groups[0].Prospects))
	assert.Equal(t, "p1", groups[1].FocusProfileID)
	assert.Equal(t, []string{"x3", "x1"}, profileIDs(groups[1].Prospects))
}

func TestLoadFocusProfiles(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.SetResume("p1", models.ProfileResume{
		BasicInfo: &models.BasicInfo{ID: "p1", FullName: "Ada Lovelace"},
	})
	f.backend.SetResume("p2", models.ProfileResume{})

	v := f.view()
	_, err := v.Search(context.Background())
	require.NoError(t, err)

	v.LoadFocusProfiles(context.Background())

	resume, err := v.FocusProfile("p1")
	require.NoError(t, err)
	require.NotNil(t, resume)
	assert.Equal(t, "Ada Lovelace", v.FocusName("p1"))
	assert.NotNil(t, resume.Experiences)
	assert.NotNil(t, resume.Education)

	resume, err = v.FocusProfile("p2")
	require.ErrorIs(t, err, apperrors.ErrInvalidProfileData)
	assert.Nil(t, resume)
	assert.Equal(t, "p2", v.FocusName("p2"))

	// loaded profiles are not fetched again
	v.LoadFocusProfiles(context.Background())
	assert.Equal(t, 3, f.backend.Count("GET /profile_resume/"))
}

func TestProfileResumeNotFound(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.view().ProfileResume(context.Background(), "missing")
	require.True(t, api.IsStatus(err, 404))
	assert.EqualError(t, err, "Profile missing not found")
}

func TestLoadSaved(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.SetSavedProspects("s1", []models.Prospect{
		{ProfileID: "a", OverallSimilarity: 0.2},
		{ProfileID: "b", OverallSimilarity: 0.5},
	})
	v := f.view()

	saved, err := v.LoadSaved(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, profileIDs(saved))
	assert.Equal(t, []string{"b", "a"}, profileIDs(v.Prospects()))
}

func TestExportCSV(t *testing.T) {
	t.Run("nothing to export", func(t *testing.T) {
		f := setupTestFixture(t)
		var buf bytes.Buffer
		require.ErrorIs(t, f.view().ExportCSV(&buf), apperrors.ErrNothingToExport)
		assert.Zero(t, buf.Len())
	})

	t.Run("rows", func(t *testing.T) {
		var buf bytes.Buffer
		err := prospects.WriteCSV(&buf, []models.Prospect{{
			Name:                 `Zoe "Z" Martin`,
			Title:                "Head of Sales",
			Location:             "Paris, France",
			OverallSimilarity:    0.456,
			SharedCompaniesCount: 2,
			SharedSchoolsCount:   1,
			SharedCompanies:      []models.SharedEntity{{Name: "Acme"}, {Name: "Globex"}},
			SharedSchools:        []models.SharedEntity{{Name: "HEC"}},
			ProfileURL:           "https://www.linkedin.com/in/zoe",
			FocusProfileID:       "p1",
		}})
		require.NoError(t, err)

		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Similarity score (%)", rows[0][3])
		assert.Equal(t, []string{
			`Zoe "Z" Martin`, "Head of Sales", "Paris, France", "46", "2", "1",
			"Acme; Globex", "HEC", "https://www.linkedin.com/in/zoe", "p1",
		}, rows[1])
	})
}

func TestExportFileName(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "prospects_2025-03-09.csv", prospects.ExportFileName(at))
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"Acme", "Globex"}, prospects.ParseList(" Acme, ,Globex "))
	assert.Nil(t, prospects.ParseList(""))
}
