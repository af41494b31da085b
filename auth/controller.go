// Package auth holds the client's view of who is signed in.
package auth

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/matt-kaep/WI-frontend/identity"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/provider"
	"github.com/rs/zerolog/log"
)

// SessionLookup fetches the backend's active work session. A nil session
// with a nil error means there is none yet.
type SessionLookup interface {
	CurrentSession(ctx context.Context) (*models.WorkSession, error)
}

// State is a snapshot of the auth controller.
type State struct {
	Identity   *identity.Identity
	Credential *identity.Credential
	Loading    bool
	// AppSession is the backend session seen by the last RefreshSession.
	AppSession *models.WorkSession
}

// IsAuthenticated reports whether both an identity and a credential are held.
func (s State) IsAuthenticated() bool {
	return s.Identity != nil && s.Credential != nil
}

func (s State) clone() State {
	c := s
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	if s.Credential != nil {
		cred := *s.Credential
		c.Credential = &cred
	}
	if s.AppSession != nil {
		ws := s.AppSession.Clone()
		c.AppSession = &ws
	}
	return c
}

// Controller tracks the signed-in identity. Identity and credential writes
// pass through one gate: each write carries the time its data was
// observed, and a write older than the last applied one is dropped.
type Controller struct {
	provider provider.Provider
	backend  SessionLookup
	nowTime  func() time.Time

	mu        sync.Mutex
	state     State
	appliedAt time.Time
	listeners []func(State)
	pending   []State

	wake        chan struct{}
	done        chan struct{}
	ready       chan struct{}
	unsubscribe func()
	startOnce   sync.Once
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

type Option func(*Controller)

// WithNowTime sets the clock used to stamp fetches (primarily for testing).
func WithNowTime(now func() time.Time) Option {
	return func(c *Controller) { c.nowTime = now }
}

// NewController creates a controller. backend may be nil, in which case
// RefreshSession never looks up the app session.
func NewController(p provider.Provider, backend SessionLookup, opts ...Option) *Controller {
	c := &Controller{
		provider: p,
		backend:  backend,
		nowTime:  time.Now,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to provider changes and runs the one-shot
// initialization in the background. Calling Start again does nothing.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		events, unsubscribe := c.provider.Subscribe()
		c.unsubscribe = unsubscribe

		c.wg.Add(3)
		go c.notifyLoop()
		go c.listen(events)
		go c.initialize(ctx)
	})
}

// Ready is closed once initialization has finished, whatever its outcome.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Close unsubscribes from the provider and waits for background work.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		close(c.done)
		c.wg.Wait()
	})
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// OnChange registers fn to be called with every new state, in order, on
// the controller's notifier goroutine.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SignIn signs in with email and password. The identity arrives with the
// provider's sign-in event, not from this call's result. Provider errors
// are returned unchanged.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	c.setLoading(true)
	defer c.setLoading(false)

	if _, err := c.provider.SignInWithPassword(ctx, email, password); err != nil {
		log.Error().Err(err).Str("email", email).Msg("Sign in failed")
		return err
	}
	log.Info().Str("email", email).Msg("Signed in")
	return nil
}

// SignInWithOTP asks the provider to send a one-time sign-in link.
func (c *Controller) SignInWithOTP(ctx context.Context, email string) error {
	if err := c.provider.SignInWithOTP(ctx, email); err != nil {
		log.Error().Err(err).Str("email", email).Msg("Sign in link request failed")
		return err
	}
	return nil
}

// SignUp registers an account. It returns true when the provider signed
// the new account in right away, false when email confirmation is pending.
func (c *Controller) SignUp(ctx context.Context, email, password string) (bool, error) {
	c.setLoading(true)
	defer c.setLoading(false)

	session, err := c.provider.SignUp(ctx, email, password)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("Sign up failed")
		return false, err
	}
	return session != nil, nil
}

// SignOut signs out and always clears local state, even when the provider
// call fails. The failure is logged, not returned.
func (c *Controller) SignOut(ctx context.Context) {
	c.setLoading(true)
	defer c.setLoading(false)

	if err := c.provider.SignOut(ctx); err != nil {
		log.Error().Err(err).Msg("Sign out failed, clearing local state anyway")
	}
	c.apply(c.nowTime(), nil, nil, true)
}

// RefreshSession re-reads the provider session and then the backend's
// active session. A failed backend lookup is logged and leaves the
// credential refresh in place.
func (c *Controller) RefreshSession(ctx context.Context) error {
	c.setLoading(true)
	defer c.setLoading(false)

	observed := c.nowTime()
	session, err := c.provider.GetSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Refreshing session failed")
		c.setAppSession(nil)
		return err
	}
	if session == nil {
		c.apply(observed, nil, nil, false)
		return nil
	}
	c.apply(observed, &session.User, &session.Credential, false)

	if c.backend == nil {
		return nil
	}
	appSession, err := c.backend.CurrentSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not load the current app session")
		return nil
	}
	c.setAppSession(appSession)
	return nil
}

// RefreshUser re-reads the identity record. Failures are logged and
// otherwise ignored.
func (c *Controller) RefreshUser(ctx context.Context) {
	observed := c.nowTime()
	user, err := c.provider.GetUser(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Refreshing user failed")
		return
	}

	c.mu.Lock()
	if observed.Before(c.appliedAt) {
		c.mu.Unlock()
		log.Debug().Msg("Dropping stale user refresh")
		return
	}
	c.appliedAt = observed
	u := *user
	c.state.Identity = &u
	c.enqueueLocked()
	c.mu.Unlock()
}

func (c *Controller) initialize(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.ready)

	c.setLoading(true)
	defer c.setLoading(false)

	observed := c.nowTime()
	session, err := c.provider.GetSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Initial session lookup failed")
		c.apply(observed, nil, nil, false)
		return
	}
	if session == nil {
		log.Debug().Msg("No existing session")
		c.apply(observed, nil, nil, false)
		return
	}

	user := session.User
	if fetched, err := c.provider.GetUser(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not fetch user, using the session's copy")
	} else {
		user = *fetched
	}
	c.apply(observed, &user, &session.Credential, false)
}

func (c *Controller) listen(events <-chan provider.Event) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			log.Debug().Str("event", string(ev.Type)).Msg("Auth state changed")
			if ev.Session == nil {
				c.apply(ev.At, nil, nil, false)
				continue
			}
			c.apply(ev.At, &ev.Session.User, &ev.Session.Credential, false)
		}
	}
}

// apply writes identity and credential when at is not older than the last
// applied write, or unconditionally when force is set. Clearing the
// identity also clears the app session.
func (c *Controller) apply(at time.Time, user *identity.Identity, cred *identity.Credential, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && at.Before(c.appliedAt) {
		log.Debug().Time("observed_at", at).Time("applied_at", c.appliedAt).Msg("Dropping stale auth state")
		return
	}
	if at.After(c.appliedAt) {
		c.appliedAt = at
	}

	c.state.Identity, c.state.Credential = nil, nil
	if user != nil {
		u := *user
		c.state.Identity = &u
	}
	if cred != nil {
		cr := *cred
		c.state.Credential = &cr
	}
	if user == nil {
		c.state.AppSession = nil
	}
	c.enqueueLocked()
}

func (c *Controller) setLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Loading == loading {
		return
	}
	c.state.Loading = loading
	c.enqueueLocked()
}

func (c *Controller) setAppSession(s *models.WorkSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AppSession = nil
	if s != nil {
		ws := s.Clone()
		c.state.AppSession = &ws
	}
	c.enqueueLocked()
}

func (c *Controller) enqueueLocked() {
	if len(c.listeners) == 0 {
		return
	}
	c.pending = append(c.pending, c.state.clone())
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) notifyLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		listeners := slices.Clone(c.listeners)
		c.mu.Unlock()

		for _, s := range batch {
			for _, fn := range listeners {
				fn(s)
			}
		}
	}
}
