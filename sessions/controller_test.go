package sessions_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/matt-kaep/WI-frontend/api"
	"github.com/matt-kaep/WI-frontend/api/apifake"
	"github.com/matt-kaep/WI-frontend/auth"
	"github.com/matt-kaep/WI-frontend/identity"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/internal/utils"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/provider/providerfake"
	"github.com/matt-kaep/WI-frontend/sessions"
	"github.com/matt-kaep/WI-frontend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/oauth2"
)

const testUserID = "user-1"

// fakeAuth is an AuthSource whose state the test sets directly.
type fakeAuth struct {
	mu        sync.Mutex
	state     auth.State
	listeners []func(auth.State)
}

func (a *fakeAuth) State() auth.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *fakeAuth) OnChange(fn func(auth.State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *fakeAuth) set(s auth.State) {
	a.mu.Lock()
	a.state = s
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func signedIn(userID string) auth.State {
	return auth.State{
		Identity:   &identity.Identity{ID: userID, Email: userID + "@example.com"},
		Credential: &identity.Credential{AccessToken: "token-" + userID},
	}
}

type testFixture struct {
	backend *apifake.FakeBackend
	auth    *fakeAuth
	store   *storage.MemoryStore
	ctrl    *sessions.Controller
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := apifake.New()
	t.Cleanup(backend.Close)

	client, err := api.New(backend.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-1"}))
	require.NoError(t, err)

	a := &fakeAuth{state: signedIn(testUserID)}
	store := storage.NewMemoryStore()
	return &testFixture{
		backend: backend,
		auth:    a,
		store:   store,
		ctrl:    sessions.NewController(client, a, store),
	}
}

// addSessions stores sessions named after names on the backend.
func (f *testFixture) addSessions(names ...string) []models.WorkSession {
	out := make([]models.WorkSession, len(names))
	for i, n := range names {
		out[i] = f.backend.AddSession(models.WorkSession{Name: n, UserID: testUserID})
	}
	return out
}

func (f *testFixture) remembered(t *testing.T) (string, bool) {
	t.Helper()
	id, ok, err := f.store.Get(storage.KeyCurrentSessionID)
	require.NoError(t, err)
	return id, ok
}

func activeIDs(list []models.WorkSession) []string {
	var ids []string
	for _, s := range list {
		if s.IsActive {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func ids(list []models.WorkSession) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestFetchSessionsSignedOutIsNoop(t *testing.T) {
	f := setupTestFixture(t)
	f.addSessions("A")
	f.auth.set(auth.State{})

	f.ctrl.FetchSessions(context.Background())

	assert.Zero(t, f.backend.Count("GET /session/all"))
	assert.Empty(t, f.ctrl.Sessions())
}

func TestFetchSessionsEmptyList(t *testing.T) {
	f := setupTestFixture(t)

	f.ctrl.FetchSessions(context.Background())

	st := f.ctrl.Snapshot()
	assert.Empty(t, st.Sessions)
	assert.Nil(t, st.CurrentSession)
	assert.NoError(t, st.Err)
	assert.False(t, st.IsLoading)
	assert.Zero(t, f.store.Writes(), "an empty list writes nothing to storage")
}

func TestFetchSessionsDefaultSelection(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *testFixture, s []models.WorkSession)
		wantAt int
	}{
		{
			name:   "first entry",
			setup:  func(t *testing.T, f *testFixture, s []models.WorkSession) {},
			wantAt: 0,
		},
		{
			name: "remembered entry",
			setup: func(t *testing.T, f *testFixture, s []models.WorkSession) {
				require.NoError(t, f.store.Set(storage.KeyCurrentSessionID, s[2].ID))
			},
			wantAt: 2,
		},
		{
			name: "remembered entry no longer exists",
			setup: func(t *testing.T, f *testFixture, s []models.WorkSession) {
				require.NoError(t, f.store.Set(storage.KeyCurrentSessionID, "gone"))
			},
			wantAt: 0,
		},
		{
			name: "server active entry wins over remembered",
			setup: func(t *testing.T, f *testFixture, s []models.WorkSession) {
				require.NoError(t, f.store.Set(storage.KeyCurrentSessionID, s[2].ID))
				f.backend.SetActive(s[1].ID)
			},
			wantAt: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			all := f.addSessions("A", "B", "C")
			tt.setup(t, f, all)
			want := all[tt.wantAt].ID

			f.ctrl.FetchSessions(context.Background())

			st := f.ctrl.Snapshot()
			require.NotNil(t, st.CurrentSession)
			assert.Equal(t, want, st.CurrentSession.ID)
			assert.Equal(t, []string{want}, activeIDs(st.Sessions))
			assert.Equal(t, want, f.backend.ActiveID(), "default selection is confirmed with the server")
			assert.Equal(t, 1, f.backend.Count("POST /session/"+want+"/activate"))
			remembered, ok := f.remembered(t)
			require.True(t, ok)
			assert.Equal(t, want, remembered)
		})
	}
}

func TestFetchSessionsDefaultActivationFails(t *testing.T) {
	f := setupTestFixture(t)
	all := f.addSessions("A", "B")
	f.backend.Fail("POST /session/"+all[0].ID+"/activate", apifake.Failure{Status: 500, Body: `{"detail":"activation failed"}`})

	f.ctrl.FetchSessions(context.Background())

	st := f.ctrl.Snapshot()
	assert.Equal(t, ids(all), ids(st.Sessions))
	assert.Nil(t, st.CurrentSession)
	assert.EqualError(t, st.Err, "activation failed")
	assert.Zero(t, f.store.Writes())
}

func TestFetchSessionsError(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.Fail("GET /session/all", apifake.Failure{Status: 503, ContentType: "text/html", Body: "<h1>down</h1>"})

	f.ctrl.FetchSessions(context.Background())

	st := f.ctrl.Snapshot()
	assert.EqualError(t, st.Err, "Error 503: Service Unavailable")
	assert.False(t, st.IsLoading)
}

func TestFetchSessionsKeepsExistingSelection(t *testing.T) {
	f := setupTestFixture(t)
	all := f.addSessions("A", "B")
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)
	f.ctrl.SetCurrentSessionByID(ctx, all[1].ID)
	before := f.ctrl.CurrentSession()
	require.NotNil(t, before)

	// The server list changes underneath: a new session becomes active and
	// the selected one disappears.
	c := f.backend.AddSession(models.WorkSession{Name: "C", UserID: testUserID})
	f.backend.SetActive(c.ID)
	require.True(t, deleteOnBackend(t, f, all[1].ID))

	f.ctrl.FetchSessions(ctx)

	after := f.ctrl.CurrentSession()
	require.NotNil(t, after)
	assert.Empty(t, cmp.Diff(before, after), "fetch must not change the selection")
	assert.Equal(t, []string{all[0].ID, c.ID}, ids(f.ctrl.Sessions()))
}

func TestFetchSessionsKeepsSelectionWhenServerActivatesAnother(t *testing.T) {
	f := setupTestFixture(t)
	all := f.addSessions("A", "B", "C")
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)
	f.ctrl.SetCurrentSessionByID(ctx, all[1].ID)
	before := f.ctrl.CurrentSession()
	require.NotNil(t, before)
	require.True(t, before.IsActive)

	f.backend.SetActive(all[2].ID)
	f.ctrl.FetchSessions(ctx)

	after := f.ctrl.CurrentSession()
	require.NotNil(t, after)
	assert.Empty(t, cmp.Diff(before, after), "fetch must not change the selection")
	assert.Equal(t, []string{all[1].ID}, activeIDs(f.ctrl.Sessions()))
}

func deleteOnBackend(t *testing.T, f *testFixture, id string) bool {
	t.Helper()
	client, err := api.New(f.backend.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "other"}))
	require.NoError(t, err)
	res, err := client.DeleteSession(context.Background(), id)
	require.NoError(t, err)
	return res.Success
}

func TestSetCurrentSessionMarksExactlyOneActive(t *testing.T) {
	f := setupTestFixture(t)
	all := f.addSessions("A", "B", "C")
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)

	for _, s := range all {
		f.ctrl.SetCurrentSession(ctx, s)

		st := f.ctrl.Snapshot()
		assert.Equal(t, []string{s.ID}, activeIDs(st.Sessions))
		require.NotNil(t, st.CurrentSession)
		assert.Equal(t, s.ID, st.CurrentSession.ID)
		assert.True(t, st.CurrentSession.IsActive)
		assert.Equal(t, s.ID, f.backend.ActiveID())
		remembered, _ := f.remembered(t)
		assert.Equal(t, s.ID, remembered)
	}
}

func TestSetCurrentSessionActivationFailure(t *testing.T) {
	f := setupTestFixture(t)
	all := f.addSessions("A", "B")
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)
	before := f.ctrl.Snapshot()
	writes := f.store.Writes()

	f.backend.Fail("POST /session/"+all[1].ID+"/activate", apifake.Failure{Status: 500, Body: `{"detail":"Could not activate session"}`})
	f.ctrl.SetCurrentSession(ctx, all[1])

	after := f.ctrl.Snapshot()
	assert.Empty(t, cmp.Diff(before.Sessions, after.Sessions))
	assert.Empty(t, cmp.Diff(before.CurrentSession, after.CurrentSession))
	assert.EqualError(t, after.Err, "Could not activate session")
	assert.Equal(t, writes, f.store.Writes())
}

func TestSetCurrentSessionByIDUnknownIsIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.addSessions("A")
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)
	calls := len(f.backend.Requests())

	f.ctrl.SetCurrentSessionByID(ctx, "missing")

	assert.Len(t, f.backend.Requests(), calls)
	assert.NoError(t, f.ctrl.Snapshot().Err)
}

func TestCreateSession(t *testing.T) {
	f := setupTestFixture(t)
	f.addSessions("Existing")
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)

	created, err := f.ctrl.CreateSession(ctx, "Import Q1", utils.Ptr("desc"))
	require.NoError(t, err)

	st := f.ctrl.Snapshot()
	assert.Contains(t, ids(st.Sessions), created.ID)
	require.NotNil(t, st.CurrentSession)
	assert.Equal(t, created.ID, st.CurrentSession.ID)
	assert.Equal(t, []string{created.ID}, activeIDs(st.Sessions))
	assert.True(t, created.IsActive)
	assert.Equal(t, testUserID, created.UserID)
	assert.Equal(t, "desc", utils.Value(created.Description))
	remembered, _ := f.remembered(t)
	assert.Equal(t, created.ID, remembered)
}

func TestCreateSessionErrors(t *testing.T) {
	t.Run("signed out", func(t *testing.T) {
		f := setupTestFixture(t)
		f.auth.set(auth.State{})

		_, err := f.ctrl.CreateSession(context.Background(), "Import", nil)
		assert.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
		assert.Zero(t, f.backend.Count("POST /session/create"))
	})

	t.Run("blank name", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.ctrl.CreateSession(context.Background(), "  ", nil)
		assert.ErrorIs(t, err, apperrors.ErrEmptySessionName)
		assert.ErrorIs(t, f.ctrl.Snapshot().Err, apperrors.ErrEmptySessionName)
		assert.Zero(t, f.backend.Count("POST /session/create"))
	})

	t.Run("server error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addSessions("A")
		f.ctrl.FetchSessions(context.Background())
		before := f.ctrl.Sessions()
		f.backend.Fail("POST /session/create", apifake.Failure{Status: 500, Body: `{"message":"quota exceeded"}`})

		_, err := f.ctrl.CreateSession(context.Background(), "Import", nil)
		assert.EqualError(t, err, "quota exceeded")
		st := f.ctrl.Snapshot()
		assert.EqualError(t, st.Err, "quota exceeded")
		assert.Empty(t, cmp.Diff(before, st.Sessions))
		assert.False(t, st.IsLoading)
	})
}

func TestCreateThenDeleteRestoresList(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		selectAt int // -1 leaves nothing selected
	}{
		{name: "empty", existing: nil, selectAt: -1},
		{name: "one selected", existing: []string{"A"}, selectAt: 0},
		{name: "three, last selected", existing: []string{"A", "B", "C"}, selectAt: 2},
	}

	ignoreActive := cmpopts.IgnoreFields(models.WorkSession{}, "IsActive")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			all := f.addSessions(tt.existing...)
			ctx := context.Background()
			f.ctrl.FetchSessions(ctx)
			if tt.selectAt >= 0 {
				f.ctrl.SetCurrentSession(ctx, all[tt.selectAt])
			}
			before := f.ctrl.Sessions()

			created, err := f.ctrl.CreateSession(ctx, "Temporary", nil)
			require.NoError(t, err)
			deleted, err := f.ctrl.DeleteSession(ctx, created.ID)
			require.NoError(t, err)
			require.True(t, deleted)

			st := f.ctrl.Snapshot()
			assert.Empty(t, cmp.Diff(before, st.Sessions, ignoreActive))
			if st.CurrentSession != nil {
				assert.Contains(t, ids(st.Sessions), st.CurrentSession.ID)
				assert.NotEqual(t, created.ID, st.CurrentSession.ID)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	t.Run("current session", func(t *testing.T) {
		f := setupTestFixture(t)
		all := f.addSessions("A", "B")
		ctx := context.Background()
		f.ctrl.FetchSessions(ctx)
		require.Equal(t, all[0].ID, f.ctrl.CurrentSession().ID)

		deleted, err := f.ctrl.DeleteSession(ctx, all[0].ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		st := f.ctrl.Snapshot()
		assert.Equal(t, []string{all[1].ID}, ids(st.Sessions))
		require.NotNil(t, st.CurrentSession)
		assert.Equal(t, all[1].ID, st.CurrentSession.ID)
		remembered, _ := f.remembered(t)
		assert.Equal(t, all[1].ID, remembered)
	})

	t.Run("last session", func(t *testing.T) {
		f := setupTestFixture(t)
		all := f.addSessions("A")
		ctx := context.Background()
		f.ctrl.FetchSessions(ctx)

		_, err := f.ctrl.DeleteSession(ctx, all[0].ID)
		require.NoError(t, err)

		st := f.ctrl.Snapshot()
		assert.Empty(t, st.Sessions)
		assert.Nil(t, st.CurrentSession)
		_, ok := f.remembered(t)
		assert.False(t, ok)
	})

	t.Run("other session", func(t *testing.T) {
		f := setupTestFixture(t)
		all := f.addSessions("A", "B")
		ctx := context.Background()
		f.ctrl.FetchSessions(ctx)
		writes := f.store.Writes()

		_, err := f.ctrl.DeleteSession(ctx, all[1].ID)
		require.NoError(t, err)

		assert.Equal(t, all[0].ID, f.ctrl.CurrentSession().ID)
		assert.Equal(t, writes, f.store.Writes())
	})

	t.Run("server error", func(t *testing.T) {
		f := setupTestFixture(t)
		all := f.addSessions("A")
		ctx := context.Background()
		f.ctrl.FetchSessions(ctx)

		deleted, err := f.ctrl.DeleteSession(ctx, "missing")
		assert.False(t, deleted)
		assert.EqualError(t, err, "Session not found")
		assert.EqualError(t, f.ctrl.Snapshot().Err, "Session not found")
		assert.Equal(t, []string{all[0].ID}, ids(f.ctrl.Sessions()))
	})

	t.Run("signed out", func(t *testing.T) {
		f := setupTestFixture(t)
		f.auth.set(auth.State{})
		_, err := f.ctrl.DeleteSession(context.Background(), "any")
		assert.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	})
}

func TestUpdateSessionIsLocalUntilFetch(t *testing.T) {
	f := setupTestFixture(t)
	all := f.addSessions("A", "B")
	f.backend.SetCounts(all[0].ID, 10, 8, 0)
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)
	calls := len(f.backend.Requests())

	cur := f.ctrl.CurrentSession()
	require.NotNil(t, cur)
	cur.SelectedProfiles = []string{"p1", "p2"}
	cur.ProspectCount = 42
	f.ctrl.UpdateSession(*cur)

	assert.Len(t, f.backend.Requests(), calls, "updates never reach the server")
	got := f.ctrl.CurrentSession()
	assert.Equal(t, []string{"p1", "p2"}, got.SelectedProfiles)
	assert.Equal(t, 42, got.ProspectCount)
	assert.Equal(t, 42, f.ctrl.Sessions()[0].ProspectCount)

	f.backend.SetCounts(all[0].ID, 10, 8, 5)
	f.ctrl.FetchSessions(ctx)

	got = f.ctrl.CurrentSession()
	assert.Equal(t, []string{"p1", "p2"}, got.SelectedProfiles, "UI-only fields survive a fetch")
	assert.Equal(t, 5, got.ProspectCount, "server counters win after a fetch")
}

func TestUpdateSessionUnknownIsIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.addSessions("A")
	f.ctrl.FetchSessions(context.Background())
	before := f.ctrl.Snapshot()

	f.ctrl.UpdateSession(models.WorkSession{ID: "missing", Name: "X"})

	assert.Empty(t, cmp.Diff(before, f.ctrl.Snapshot(), cmpopts.EquateErrors()))
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	f := setupTestFixture(t)
	f.addSessions("A")
	ctx := context.Background()
	f.ctrl.FetchSessions(ctx)

	st := f.ctrl.Snapshot()
	st.Sessions[0].Name = "mutated"
	st.CurrentSession.Name = "mutated"

	assert.Equal(t, "A", f.ctrl.Sessions()[0].Name)
	assert.Equal(t, "A", f.ctrl.CurrentSession().Name)
}

func TestControllerFollowsAuth(t *testing.T) {
	f := setupTestFixture(t)
	all := f.addSessions("A", "B")
	f.auth.set(auth.State{})

	f.ctrl.Start(context.Background())
	t.Cleanup(f.ctrl.Close)
	assert.False(t, f.ctrl.Snapshot().IsLoading, "nothing to load while signed out")

	f.auth.set(signedIn(testUserID))
	require.Eventually(t, func() bool {
		cur := f.ctrl.CurrentSession()
		return cur != nil && cur.ID == all[0].ID
	}, 2*time.Second, 5*time.Millisecond)

	// A token refresh for the same user does not refetch.
	fetches := f.backend.Count("GET /session/all")
	f.auth.set(signedIn(testUserID))
	assert.Equal(t, fetches, f.backend.Count("GET /session/all"))

	f.auth.set(auth.State{})
	st := f.ctrl.Snapshot()
	assert.Empty(t, st.Sessions)
	assert.Nil(t, st.CurrentSession)
	remembered, _ := f.remembered(t)
	assert.Equal(t, all[0].ID, remembered, "sign-out keeps the remembered session")
}

func TestControllerWithAuthController(t *testing.T) {
	p := providerfake.New()
	p.AddUser("ada@example.com", "pw", "Ada")
	t.Cleanup(p.Close)

	backend := apifake.New()
	t.Cleanup(backend.Close)
	s := backend.AddSession(models.WorkSession{Name: "Import Q1", IsActive: true})

	client, err := api.New(backend.URL, p.TokenSource())
	require.NoError(t, err)

	authCtrl := auth.NewController(p, client)
	ctrl := sessions.NewController(client, authCtrl, storage.NewMemoryStore())
	ctrl.Start(context.Background())
	authCtrl.Start(context.Background())
	t.Cleanup(func() {
		authCtrl.Close()
		ctrl.Close()
	})

	require.NoError(t, authCtrl.SignIn(context.Background(), "ada@example.com", "pw"))
	require.Eventually(t, func() bool {
		cur := ctrl.CurrentSession()
		return cur != nil && cur.ID == s.ID
	}, 2*time.Second, 5*time.Millisecond)

	authCtrl.SignOut(context.Background())
	require.Eventually(t, func() bool {
		return ctrl.CurrentSession() == nil && len(ctrl.Sessions()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// blockingBackend never answers ListSessions until ctx is done.
type blockingBackend struct {
	started chan struct{}
}

func (b *blockingBackend) ListSessions(ctx context.Context) ([]models.WorkSession, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingBackend) CreateSession(ctx context.Context, userID, name string, description *string) (*models.WorkSession, error) {
	return nil, nil
}

func (b *blockingBackend) ActivateSession(ctx context.Context, sessionID string) error {
	return nil
}

func (b *blockingBackend) DeleteSession(ctx context.Context, sessionID string) (*models.DeleteResult, error) {
	return nil, nil
}

func TestCloseCancelsBackgroundFetch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := &blockingBackend{started: make(chan struct{})}
	ctrl := sessions.NewController(backend, &fakeAuth{state: signedIn(testUserID)}, storage.NewMemoryStore())
	ctrl.Start(context.Background())

	select {
	case <-backend.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	ctrl.Close()

	assert.Error(t, ctrl.Snapshot().Err)
}
