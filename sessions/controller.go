// Package sessions tracks the signed-in user's work sessions and which one
// is selected.
package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/matt-kaep/WI-frontend/auth"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/storage"
	"github.com/matt-kaep/WI-frontend/validation"
	"github.com/rs/zerolog/log"
)

// Backend is the part of the API the controller calls.
type Backend interface {
	ListSessions(ctx context.Context) ([]models.WorkSession, error)
	CreateSession(ctx context.Context, userID, name string, description *string) (*models.WorkSession, error)
	ActivateSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) (*models.DeleteResult, error)
}

// AuthSource reports who is signed in and announces changes.
type AuthSource interface {
	State() auth.State
	OnChange(fn func(auth.State))
}

// State is a snapshot of the controller, with local patches applied.
type State struct {
	Sessions       []models.WorkSession
	CurrentSession *models.WorkSession
	IsLoading      bool
	// Err is the last failure, cleared when the next fetch, create or
	// delete starts.
	Err error
}

// Controller owns the session list and the selection. The selection is
// kept by id and only changes through a confirmed activation, a delete, or
// sign-out.
type Controller struct {
	backend   Backend
	auth      AuthSource
	store     storage.Store
	validator *validation.Validator

	mu        sync.Mutex
	sessions  []models.WorkSession
	patches   map[string]Patch
	currentID string
	// selected is the activated session as it was when selected, used when
	// the list no longer contains it.
	selected *models.WorkSession
	loading  bool
	err      error
	userID   string

	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewController(backend Backend, authSource AuthSource, store storage.Store) *Controller {
	return &Controller{
		backend:   backend,
		auth:      authSource,
		store:     store,
		validator: validation.NewValidator(),
		patches:   make(map[string]Patch),
		loading:   true,
	}
}

// Start follows the auth state: sessions are fetched whenever a user
// becomes authenticated and cleared on sign-out.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.auth.OnChange(c.authChanged)
	c.authChanged(c.auth.State())
}

// Close stops reacting to auth changes and waits for background fetches.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Wait blocks until the fetches started by auth changes so far are done.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) authChanged(s auth.State) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if !s.IsAuthenticated() {
		wasSignedIn := c.userID != ""
		c.userID = ""
		if wasSignedIn {
			c.clearLocked()
		}
		c.loading = false
		c.mu.Unlock()
		return
	}

	if s.Identity.ID == c.userID {
		c.mu.Unlock()
		return
	}
	log.Debug().Str("user_id", s.Identity.ID).Msg("User authenticated, loading sessions")
	c.userID = s.Identity.ID
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.FetchSessions(ctx)
	}()
}

// FetchSessions replaces the list with the server's. It does nothing when
// no one is signed in. When nothing is selected yet, a default is picked
// and confirmed with the server before it is selected.
func (c *Controller) FetchSessions(ctx context.Context) {
	if !c.auth.State().IsAuthenticated() {
		return
	}
	c.begin()
	defer c.setLoading(false)

	list, err := c.backend.ListSessions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch sessions")
		c.setErr(err)
		return
	}

	c.mu.Lock()
	c.sessions = cloneSessions(list)
	for id, p := range c.patches {
		server, ok := c.findLocked(id)
		if !ok {
			delete(c.patches, id)
			continue
		}
		if p = p.rebase(server); p.Empty() {
			delete(c.patches, id)
		} else {
			c.patches[id] = p
		}
	}
	if c.currentID != "" {
		if _, ok := c.findLocked(c.currentID); ok {
			for i := range c.sessions {
				c.sessions[i].IsActive = c.sessions[i].ID == c.currentID
			}
		}
		c.mu.Unlock()
		return
	}
	if len(list) == 0 {
		c.mu.Unlock()
		return
	}
	candidate := c.defaultCandidateLocked()
	c.mu.Unlock()

	log.Info().Str("session_id", candidate.ID).Msg("Selecting default session")
	_ = c.activate(ctx, candidate)
}

// defaultCandidateLocked picks the server's active session, else the
// remembered one, else the first.
func (c *Controller) defaultCandidateLocked() models.WorkSession {
	for _, s := range c.sessions {
		if s.IsActive {
			return s.Clone()
		}
	}
	if id, ok, err := c.store.Get(storage.KeyCurrentSessionID); err != nil {
		log.Warn().Err(err).Msg("Could not read the remembered session")
	} else if ok {
		if s, found := c.findLocked(id); found {
			return s
		}
	}
	return c.sessions[0].Clone()
}

// SetCurrentSessionByID activates the listed session with id. Unknown ids
// are ignored. Failures are kept in the state's Err.
func (c *Controller) SetCurrentSessionByID(ctx context.Context, id string) {
	c.mu.Lock()
	s, ok := c.findLocked(id)
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("session_id", id).Msg("Ignoring unknown session")
		return
	}
	_ = c.activate(ctx, s)
}

// SetCurrentSession activates s and marks it as the only active session in
// the list. Failures are kept in the state's Err.
func (c *Controller) SetCurrentSession(ctx context.Context, s models.WorkSession) {
	_ = c.activate(ctx, s)
}

func (c *Controller) activate(ctx context.Context, s models.WorkSession) error {
	if err := c.backend.ActivateSession(ctx, s.ID); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to activate session")
		c.setErr(err)
		return err
	}

	c.mu.Lock()
	if canonical, ok := c.findLocked(s.ID); ok {
		s = canonical
	}
	s.IsActive = true
	c.currentID = s.ID
	c.selected = &s
	for i := range c.sessions {
		c.sessions[i].IsActive = c.sessions[i].ID == s.ID
	}
	c.mu.Unlock()

	if err := c.store.Set(storage.KeyCurrentSessionID, s.ID); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("Could not remember the current session")
	}
	return nil
}

// CreateSession creates a session, adds it to the list and activates it.
// Failures are kept in the state's Err and also returned.
func (c *Controller) CreateSession(ctx context.Context, name string, description *string) (*models.WorkSession, error) {
	st := c.auth.State()
	if !st.IsAuthenticated() {
		return nil, fmt.Errorf("[Sessions Create] you must be signed in to create a session: %w", apperrors.ErrNotAuthenticated)
	}
	c.begin()
	defer c.setLoading(false)

	if err := c.validator.ValidateSessionName(name); err != nil {
		c.setErr(err)
		return nil, err
	}

	created, err := c.backend.CreateSession(ctx, st.Identity.ID, name, description)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to create session")
		c.setErr(err)
		return nil, err
	}

	c.mu.Lock()
	c.sessions = append(c.sessions, created.Clone())
	c.mu.Unlock()

	if err := c.activate(ctx, *created); err == nil {
		created.IsActive = true
	}
	log.Info().Str("session_id", created.ID).Str("name", created.Name).Msg("Session created")
	return created, nil
}

// UpdateSession records s as a local change without calling the server.
// Unknown sessions are ignored.
func (c *Controller) UpdateSession(s models.WorkSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	base, ok := c.findLocked(s.ID)
	if !ok {
		if c.selected == nil || c.selected.ID != s.ID {
			return
		}
		base = c.selected.Clone()
	}
	p := diff(base, s)
	if p.Empty() {
		delete(c.patches, s.ID)
		return
	}
	c.patches[s.ID] = p
}

// DeleteSession deletes the session on the server. When it was selected,
// the selection and the remembered id are cleared and the first remaining
// session is activated. It returns false when the server reports no
// success. Failures are kept in the state's Err and also returned.
func (c *Controller) DeleteSession(ctx context.Context, id string) (bool, error) {
	if !c.auth.State().IsAuthenticated() {
		return false, fmt.Errorf("[Sessions Delete] you must be signed in to delete a session: %w", apperrors.ErrNotAuthenticated)
	}
	c.begin()
	defer c.setLoading(false)

	result, err := c.backend.DeleteSession(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("Failed to delete session")
		c.setErr(err)
		return false, err
	}
	if !result.Success {
		log.Warn().Str("session_id", id).Str("message", result.Message).Msg("Server did not delete session")
		return false, nil
	}

	c.mu.Lock()
	kept := c.sessions[:0]
	for _, s := range c.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	c.sessions = kept
	delete(c.patches, id)

	wasCurrent := c.currentID == id
	var next *models.WorkSession
	if wasCurrent {
		c.currentID = ""
		c.selected = nil
		if len(c.sessions) > 0 {
			first := c.sessions[0].Clone()
			next = &first
		}
	}
	c.mu.Unlock()

	if wasCurrent {
		if err := c.store.Delete(storage.KeyCurrentSessionID); err != nil {
			log.Warn().Err(err).Msg("Could not forget the deleted session")
		}
		if next != nil {
			_ = c.activate(ctx, *next)
		}
	}
	log.Info().Str("session_id", id).Msg("Session deleted")
	return true, nil
}

// Snapshot returns a copy of the state with local patches applied.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Sessions:  make([]models.WorkSession, len(c.sessions)),
		IsLoading: c.loading,
		Err:       c.err,
	}
	for i, s := range c.sessions {
		st.Sessions[i] = c.mergedLocked(s)
	}
	if cur, ok := c.currentLocked(); ok {
		st.CurrentSession = &cur
	}
	return st
}

// Sessions returns the session list with local patches applied.
func (c *Controller) Sessions() []models.WorkSession {
	return c.Snapshot().Sessions
}

// CurrentSession returns the selected session, or nil.
func (c *Controller) CurrentSession() *models.WorkSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.currentLocked()
	if !ok {
		return nil
	}
	return &cur
}

func (c *Controller) currentLocked() (models.WorkSession, bool) {
	if c.currentID == "" {
		return models.WorkSession{}, false
	}
	if s, ok := c.findLocked(c.currentID); ok {
		return c.mergedLocked(s), true
	}
	if c.selected != nil {
		return c.mergedLocked(*c.selected), true
	}
	return models.WorkSession{}, false
}

func (c *Controller) mergedLocked(s models.WorkSession) models.WorkSession {
	if p, ok := c.patches[s.ID]; ok {
		return p.apply(s)
	}
	return s.Clone()
}

func (c *Controller) findLocked(id string) (models.WorkSession, bool) {
	for _, s := range c.sessions {
		if s.ID == id {
			return s.Clone(), true
		}
	}
	return models.WorkSession{}, false
}

func (c *Controller) clearLocked() {
	c.sessions = nil
	c.patches = make(map[string]Patch)
	c.currentID = ""
	c.selected = nil
	c.err = nil
}

func (c *Controller) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = true
	c.err = nil
}

func (c *Controller) setLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = loading
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func cloneSessions(list []models.WorkSession) []models.WorkSession {
	out := make([]models.WorkSession, len(list))
	for i, s := range list {
		out[i] = s.Clone()
	}
	return out
}
