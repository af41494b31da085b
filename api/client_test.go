package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matt-kaep/WI-frontend/api"
	"github.com/matt-kaep/WI-frontend/api/apifake"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/internal/metrics"
	"github.com/matt-kaep/WI-frontend/internal/utils"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testFixture struct {
	backend *apifake.FakeBackend
	metrics *metrics.Metrics
	client  *api.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := apifake.New()
	t.Cleanup(backend.Close)

	m := metrics.New()
	client, err := api.New(backend.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-1"}), api.WithMetrics(m))
	require.NoError(t, err)

	return &testFixture{backend: backend, metrics: m, client: client}
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, apperrors.ErrNotAuthenticated
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "://bad"} {
		_, err := api.New(raw, nil)
		assert.ErrorIs(t, err, apperrors.ErrMissingConfig, raw)
	}
}

func TestBearerTokenIsAttached(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.ListSessions(context.Background())
	require.NoError(t, err)

	reqs := f.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer token-1", reqs[0].Authorization)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("session.all", "2xx")))
}

func TestMissingCredentialSendsUnauthenticatedRequest(t *testing.T) {
	backend := apifake.New()
	defer backend.Close()

	client, err := api.New(backend.URL, failingTokenSource{})
	require.NoError(t, err)

	_, err = client.ListSessions(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, "Not authenticated", err.Error())

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Authorization)
}

func TestErrorNormalization(t *testing.T) {
	const html = "<html><body><h1>502 Bad Gateway</h1><p>nginx internal trace</p></body></html>"

	tests := []struct {
		name    string
		failure apifake.Failure
		want    string
	}{
		{
			name:    "json detail",
			failure: apifake.Failure{Status: 400, Body: `{"detail":"Session name already used"}`},
			want:    "Session name already used",
		},
		{
			name:    "json message",
			failure: apifake.Failure{Status: 409, Body: `{"message":"Conflict on session"}`},
			want:    "Conflict on session",
		},
		{
			name:    "json validation list",
			failure: apifake.Failure{Status: 422, Body: `{"detail":[{"msg":"Field required"},{"msg":"Too long"}]}`},
			want:    "Field required; Too long",
		},
		{
			name:    "json without message",
			failure: apifake.Failure{Status: 500, Body: `{"error":true}`},
			want:    "Error 500: Internal Server Error",
		},
		{
			name:    "html body",
			failure: apifake.Failure{Status: 502, ContentType: "text/html", Body: html},
			want:    "Error 502: Bad Gateway",
		},
		{
			name:    "plain text body",
			failure: apifake.Failure{Status: 503, ContentType: "text/plain", Body: "upstream connect error"},
			want:    "Error 503: Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.backend.Fail("GET /session/all", tt.failure)

			_, err := f.client.ListSessions(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, api.IsStatus(err, tt.failure.Status))
			assert.NotContains(t, err.Error(), "<html>")
			assert.NotContains(t, err.Error(), "nginx")

			var apiErr *api.Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.failure.Status, apiErr.StatusCode)
		})
	}
}

func TestInvalidJSONSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	client, err := api.New(srv.URL, nil)
	require.NoError(t, err)

	_, err = client.ListSessions(context.Background())
	require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
	assert.NotContains(t, err.Error(), "maintenance")
}

func TestListSessionsAcceptsNaiveTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"a","name":"A","created_at":"2024-05-01T10:00:00.123456","updated_at":null},
			{"id":"b","name":"B","created_at":"2024-05-02T08:30:00Z","updated_at":"yesterday"}
		]`))
	}))
	defer srv.Close()

	client, err := api.New(srv.URL, nil)
	require.NoError(t, err)

	list, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), list[0].CreatedAt.Time)
	assert.True(t, list[0].UpdatedAt.IsZero())
	assert.Equal(t, time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC), list[1].CreatedAt.Time)
	assert.True(t, list[1].UpdatedAt.IsZero())
}

func TestPathIDsAreEscaped(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.EscapedPath())
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client, err := api.New(srv.URL+"/api/", nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.ActivateSession(ctx, "../../admin/x"))
	_, err = client.DeleteSession(ctx, "../x")
	require.NoError(t, err)
	_, _ = client.SessionStats(ctx, "a/b")
	_, _ = client.ToggleFavorite(ctx, 7)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 4)
	assert.Equal(t, "/api/session/..%2F..%2Fadmin%2Fx/activate", paths[0])
	assert.Equal(t, "/api/session/delete/..%2Fx", paths[1])
	assert.Equal(t, "/api/session/a%2Fb/stats", paths[2])
	assert.Equal(t, "/api/connections/7/toggle-favorite", paths[3])
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := api.New(url, nil)
	require.NoError(t, err)

	_, err = client.ListSessions(context.Background())
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
	assert.True(t, strings.HasPrefix(err.Error(), "network error"))
}

func TestCurrentSession(t *testing.T) {
	f := setupTestFixture(t)

	session, err := f.client.CurrentSession(context.Background())
	require.NoError(t, err, "404 means no active session, not a failure")
	assert.Nil(t, session)

	s := f.backend.AddSession(models.WorkSession{Name: "Import Q1", IsActive: true})
	session, err = f.client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, s.ID, session.ID)

	f.backend.Fail("GET /session/current", apifake.Failure{Status: 500, Body: `{"detail":"boom"}`})
	_, err = f.client.CurrentSession(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestSessionEndpoints(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	sessions, err := f.client.ListSessions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)

	created, err := f.client.CreateSession(ctx, "user-1", "Import Q1", utils.Ptr("desc"))
	require.NoError(t, err)
	assert.Equal(t, "Import Q1", created.Name)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "desc", utils.Value(created.Description))

	require.NoError(t, f.client.ActivateSession(ctx, created.ID))
	assert.Equal(t, created.ID, f.backend.ActiveID())

	f.backend.SetCounts(created.ID, 10, 8, 2)
	stats, err := f.client.SessionStats(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.ConnectionCount)

	f.backend.QueueStatuses(created.ID, models.SessionStatus{Status: models.StatusProcessing, Progress: utils.Ptr(0.5)})
	status, err := f.client.SessionStatus(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, status.Status)
	assert.Equal(t, 0.5, utils.Value(status.Progress))

	result, err := f.client.DeleteSession(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, f.backend.Count("GET /session/delete/"+created.ID))

	err = f.client.ActivateSession(ctx, created.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}

func TestCreateSessionValidationError(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.client.CreateSession(context.Background(), "user-1", "", nil)
	require.Error(t, err)
	assert.Equal(t, "Field required", err.Error())
	assert.True(t, api.IsStatus(err, http.StatusUnprocessableEntity))
}

func TestConnectionEndpoints(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.backend.SetConnections([]models.Connection{
		{ID: 1, ProfileID: "p1", Name: "Low", OverallSimilarity: 0.2},
		{ID: 2, ProfileID: "p2", Name: "High", OverallSimilarity: 0.9},
	})

	existing, err := f.client.ExistingConnections(ctx)
	require.NoError(t, err)
	assert.Len(t, existing, 2)

	recomputed, err := f.client.RecomputeConnections(ctx, 0.5, api.DefaultMaxResults)
	require.NoError(t, err)
	require.Len(t, recomputed, 1)
	assert.Equal(t, "High", recomputed[0].Name)
	reqs := f.backend.Requests()
	assert.Equal(t, "max_results=1000&min_similarity=0.5", reqs[len(reqs)-1].Query)

	fav, err := f.client.ToggleFavorite(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fav)

	favorites, err := f.client.FavoriteConnections(ctx)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, int64(1), favorites[0].ID)

	added, err := f.client.InsertConnection(ctx, "https://www.linkedin.com/in/ada-lovelace/")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", added.ConnectionDetails.Name)
}

func TestUploadConnections(t *testing.T) {
	f := setupTestFixture(t)
	s := f.backend.AddSession(models.WorkSession{Name: "Import"})

	csv := "First Name,Last Name,URL\nAda,Lovelace,https://linkedin.com/in/ada\nAlan,Turing,https://linkedin.com/in/alan\n"
	result, err := f.client.UploadConnections(context.Background(), api.Upload{
		SessionID:   s.ID,
		LinkedInURL: "https://www.linkedin.com/in/me/",
		FileName:    "Connections.csv",
		File:        strings.NewReader(csv),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ConnectionCount)

	uploads := f.backend.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, s.ID, uploads[0].SessionID)
	assert.Equal(t, "https://www.linkedin.com/in/me/", uploads[0].LinkedInURL)
	assert.Equal(t, "Connections.csv", uploads[0].FileName)
	assert.Equal(t, csv, uploads[0].Content)
}

func TestProspectEndpoints(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.backend.SetProspects([]models.Prospect{
		{ProfileID: "x1", FocusProfileID: "p1", Name: "Grace"},
		{ProfileID: "x2", FocusProfileID: "p9", Name: "Other"},
	})
	f.backend.SetScore("x1", 0.77)

	filter := models.ProspectFilter{SelectedConnectionIDs: []string{"p1"}, JobTitleFilter: "Sales", UseExperience: true, Limit: 150}
	found, err := f.client.FindProspects(ctx, filter)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, filter, f.backend.Filters()[0])

	scored, err := f.client.ComputeProspectConnections(ctx, found)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, 0.77, scored[0].OverallSimilarity)

	f.backend.SetResume("p1", models.ProfileResume{BasicInfo: &models.BasicInfo{ID: "p1", FullName: "Ada"}})
	resume, err := f.client.ProfileResume(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", resume.BasicInfo.FullName)

	_, err = f.client.ProfileResume(ctx, "missing")
	assert.EqualError(t, err, "Profile missing not found")

	f.backend.SetSavedProspects("s1", []models.Prospect{{ProfileID: "x1"}})
	saved, err := f.client.SessionProspects(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}
