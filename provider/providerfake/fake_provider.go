package providerfake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/matt-kaep/WI-frontend/identity"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/provider"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

var _ provider.Provider = (*FakeProvider)(nil)

type account struct {
	user         identity.Identity
	passwordHash []byte
	confirmed    bool
}

// FakeProvider is an in-memory auth provider. Failures and delays are
// injected through its exported fields and hooks.
type FakeProvider struct {
	lock    sync.RWMutex
	users   map[string]*account // email -> account
	refresh map[string]string   // refresh token -> email
	session *provider.Session
	events  *provider.Broadcaster
	key     []byte
	calls   map[string]int
	otpSent []string

	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration
	// RequireConfirmation makes SignUp return no session until Confirm.
	RequireConfirmation bool

	SignInErr     error
	SignOutErr    error
	GetSessionErr error
	GetUserErr    error

	// BeforeGetSession and BeforeGetUser run before the call does any work.
	BeforeGetSession func(ctx context.Context)
	BeforeGetUser    func(ctx context.Context)
}

func New() *FakeProvider {
	return &FakeProvider{
		users:    make(map[string]*account),
		refresh:  make(map[string]string),
		events:   provider.NewBroadcaster(),
		key:      []byte(uuid.NewString()),
		calls:    make(map[string]int),
		TokenTTL: time.Hour,
	}
}

// AddUser registers a confirmed account and returns its identity.
func (p *FakeProvider) AddUser(email, password, name string) identity.Identity {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	u := identity.Identity{ID: uuid.NewString(), Email: email, Name: name, EmailVerified: true}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.users[email] = &account{user: u, passwordHash: hash, confirmed: true}
	return u
}

// Confirm marks a signed-up account as confirmed.
func (p *FakeProvider) Confirm(email string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if a, ok := p.users[email]; ok {
		a.confirmed = true
		a.user.EmailVerified = true
	}
}

// StartSession signs email in without emitting an event, as if a session
// had been restored from an earlier run.
func (p *FakeProvider) StartSession(email string) *provider.Session {
	p.lock.Lock()
	defer p.lock.Unlock()
	a, ok := p.users[email]
	if !ok {
		return nil
	}
	p.session = p.issueLocked(a.user)
	return p.session.Clone()
}

// Emit publishes ev to subscribers as if the provider had changed state.
func (p *FakeProvider) Emit(ev provider.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	p.lock.Lock()
	p.session = ev.Session.Clone()
	p.lock.Unlock()
	p.events.Publish(ev)
}

// ExpireSession makes the current access token expired.
func (p *FakeProvider) ExpireSession() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.session != nil {
		p.session.Credential.Expiry = time.Now().Add(-time.Minute)
	}
}

// Calls returns how many times op was invoked.
func (p *FakeProvider) Calls(op string) int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.calls[op]
}

// OTPSent lists the emails sign-in links were sent to.
func (p *FakeProvider) OTPSent() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return append([]string(nil), p.otpSent...)
}

func (p *FakeProvider) Close() {
	p.events.Close()
}

func (p *FakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	p.lock.Lock()
	p.calls["sign_in"]++
	if p.SignInErr != nil {
		err := p.SignInErr
		p.lock.Unlock()
		return nil, err
	}
	a, ok := p.users[email]
	if !ok || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		p.lock.Unlock()
		return nil, &provider.Error{Code: "invalid_grant", Message: "Invalid login credentials", Err: apperrors.ErrInvalidCredentials}
	}
	if !a.confirmed {
		p.lock.Unlock()
		return nil, &provider.Error{Code: "email_not_confirmed", Message: "Email not confirmed", Err: apperrors.ErrInvalidCredentials}
	}
	p.session = p.issueLocked(a.user)
	session := p.session.Clone()
	p.lock.Unlock()

	p.events.Publish(provider.Event{Type: provider.EventSignedIn, Session: session.Clone(), At: time.Now()})
	return session, nil
}

func (p *FakeProvider) SignInWithOTP(ctx context.Context, email string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls["sign_in_otp"]++
	p.otpSent = append(p.otpSent, email)
	return nil
}

func (p *FakeProvider) SignUp(ctx context.Context, email, password string) (*provider.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	p.lock.Lock()
	p.calls["sign_up"]++
	if _, exists := p.users[email]; exists {
		p.lock.Unlock()
		return nil, &provider.Error{Code: "user_already_exists", Message: "User already registered"}
	}
	a := &account{
		user:         identity.Identity{ID: uuid.NewString(), Email: email},
		passwordHash: hash,
		confirmed:    !p.RequireConfirmation,
	}
	p.users[email] = a
	if !a.confirmed {
		p.lock.Unlock()
		return nil, nil
	}
	p.session = p.issueLocked(a.user)
	session := p.session.Clone()
	p.lock.Unlock()

	p.events.Publish(provider.Event{Type: provider.EventSignedIn, Session: session.Clone(), At: time.Now()})
	return session, nil
}

func (p *FakeProvider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	p.calls["sign_out"]++
	err := p.SignOutErr
	if p.session != nil {
		delete(p.refresh, p.session.Credential.RefreshToken)
	}
	p.session = nil
	p.lock.Unlock()

	p.events.Publish(provider.Event{Type: provider.EventSignedOut, At: time.Now()})
	return err
}

func (p *FakeProvider) GetSession(ctx context.Context) (*provider.Session, error) {
	if p.BeforeGetSession != nil {
		p.BeforeGetSession(ctx)
	}

	p.lock.Lock()
	p.calls["get_session"]++
	if p.GetSessionErr != nil {
		err := p.GetSessionErr
		p.lock.Unlock()
		return nil, err
	}
	if p.session == nil {
		p.lock.Unlock()
		return nil, nil
	}
	if p.session.Credential.Valid() {
		session := p.session.Clone()
		p.lock.Unlock()
		return session, nil
	}

	email, ok := p.refresh[p.session.Credential.RefreshToken]
	if !ok {
		p.session = nil
		p.lock.Unlock()
		p.events.Publish(provider.Event{Type: provider.EventSignedOut, At: time.Now()})
		return nil, &provider.Error{Code: "invalid_grant", Message: "Invalid Refresh Token", Err: apperrors.ErrInvalidCredentials}
	}
	delete(p.refresh, p.session.Credential.RefreshToken)
	p.session = p.issueLocked(p.users[email].user)
	session := p.session.Clone()
	p.lock.Unlock()

	p.events.Publish(provider.Event{Type: provider.EventTokenRefreshed, Session: session.Clone(), At: time.Now()})
	return session, nil
}

func (p *FakeProvider) GetUser(ctx context.Context) (*identity.Identity, error) {
	if p.BeforeGetUser != nil {
		p.BeforeGetUser(ctx)
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls["get_user"]++
	if p.GetUserErr != nil {
		return nil, p.GetUserErr
	}
	if p.session == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	a, ok := p.users[p.session.User.Email]
	if !ok {
		return nil, &provider.Error{Code: "user_not_found", Message: "User not found"}
	}
	u := a.user
	return &u, nil
}

func (p *FakeProvider) Subscribe() (<-chan provider.Event, func()) {
	return p.events.Subscribe()
}

func (p *FakeProvider) TokenSource() oauth2.TokenSource {
	return tokenSource{p: p}
}

// UpdateUser changes the stored identity and emits EventUserUpdated.
func (p *FakeProvider) UpdateUser(email, name string) error {
	p.lock.Lock()
	a, ok := p.users[email]
	if !ok {
		p.lock.Unlock()
		return errors.New("not found")
	}
	a.user.Name = name
	var session *provider.Session
	if p.session != nil && p.session.User.Email == email {
		p.session.User = a.user
		session = p.session.Clone()
	}
	p.lock.Unlock()

	if session != nil {
		p.events.Publish(provider.Event{Type: provider.EventUserUpdated, Session: session, At: time.Now()})
	}
	return nil
}

func (p *FakeProvider) issueLocked(u identity.Identity) *provider.Session {
	now := time.Now()
	exp := now.Add(p.TokenTTL)
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            u.ID,
		"email":          u.Email,
		"name":           u.Name,
		"email_verified": u.EmailVerified,
		"iat":            now.Unix(),
		"exp":            exp.Unix(),
		"jti":            uuid.NewString(),
	}).SignedString(p.key)
	if err != nil {
		panic(err)
	}
	refresh := uuid.NewString()
	p.refresh[refresh] = u.Email
	return &provider.Session{
		Credential: identity.Credential{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			Expiry:       exp,
		},
		User: u,
	}
}

type tokenSource struct {
	p *FakeProvider
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	session, err := ts.p.GetSession(context.Background())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return session.Credential.OAuth2Token(), nil
}
