package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/matt-kaep/WI-frontend/identity"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/internal/metrics"
	"github.com/matt-kaep/WI-frontend/internal/tracer"
	"github.com/matt-kaep/WI-frontend/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// KeyAuthSession is the storage key holding the persisted provider session.
const KeyAuthSession = "auth.session"

var _ Provider = (*OIDCProvider)(nil)

// OIDCProvider talks to an OpenID Connect issuer. Sign-in uses the resource
// owner password grant with a public client, refresh uses the refresh_token
// grant, and sign-out revokes the refresh token (RFC 7009) when the issuer
// advertises a revocation endpoint.
type OIDCProvider struct {
	oauth      *oauth2.Config
	oidc       *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	revokeURL  string
	httpClient *http.Client
	refresh    identity.RefreshFunc

	store   storage.Store
	events  *Broadcaster
	metrics *metrics.Metrics
	tracer  tracer.Tracer

	mu      sync.Mutex
	session *Session
	loaded  bool
}

type Option func(*OIDCProvider)

// WithHTTPClient sets the client used for every provider call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *OIDCProvider) { p.httpClient = c }
}

// WithStore persists the session so it survives restarts.
func WithStore(s storage.Store) Option {
	return func(p *OIDCProvider) { p.store = s }
}

// WithRefreshFunc replaces the refresh_token grant used when a stored
// credential has expired.
func WithRefreshFunc(fn identity.RefreshFunc) Option {
	return func(p *OIDCProvider) { p.refresh = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *OIDCProvider) { p.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *OIDCProvider) { p.tracer = t }
}

// NewOIDCProvider runs issuer discovery. clientID is the public key the
// issuer knows this client by.
func NewOIDCProvider(ctx context.Context, issuerURL, clientID string, scopes []string, opts ...Option) (*OIDCProvider, error) {
	if issuerURL == "" || clientID == "" {
		return nil, fmt.Errorf("issuer url and client id are required: %w", apperrors.ErrMissingConfig)
	}

	p := &OIDCProvider{
		httpClient: http.DefaultClient,
		store:      storage.NewMemoryStore(),
		events:     NewBroadcaster(),
		tracer:     tracer.NewNoop(),
	}
	p.refresh = p.refreshGrant
	for _, opt := range opts {
		opt(p)
	}

	discovered, err := oidc.NewProvider(p.clientContext(ctx), strings.TrimRight(issuerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[OIDCProvider New] discovery failed: %w", fromRetrieveError(err))
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := discovered.Claims(&extra); err != nil {
		return nil, fmt.Errorf("[OIDCProvider New] failed to read discovery document: %w", err)
	}

	endpoint := discovered.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	p.oidc = discovered
	p.revokeURL = extra.RevocationEndpoint
	p.verifier = discovered.Verifier(&oidc.Config{ClientID: clientID})
	p.oauth = &oauth2.Config{
		ClientID: clientID,
		Endpoint: endpoint,
		Scopes:   scopes,
	}
	return p, nil
}

func (p *OIDCProvider) SignInWithPassword(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, done := p.observe(ctx, "sign_in")
	defer func() { done(err) }()

	tok, err := p.oauth.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, fromRetrieveError(err)
	}

	cred := identity.FromOAuth2Token(tok, "")
	user, err := p.identityFor(ctx, cred)
	if err != nil {
		return nil, err
	}

	session := &Session{Credential: cred, User: user}
	p.setSession(session)
	p.events.Publish(Event{Type: EventSignedIn, Session: session.Clone(), At: time.Now()})
	return session.Clone(), nil
}

func (p *OIDCProvider) SignInWithOTP(ctx context.Context, email string) error {
	return unsupported("sign-in with a one-time link")
}

func (p *OIDCProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return nil, unsupported("sign-up")
}

// SignOut revokes the refresh token. The local session is cleared and
// EventSignedOut emitted whatever the revocation outcome.
func (p *OIDCProvider) SignOut(ctx context.Context) (err error) {
	ctx, done := p.observe(ctx, "sign_out")
	defer func() { done(err) }()

	session, _ := p.current()
	defer func() {
		p.setSession(nil)
		p.events.Publish(Event{Type: EventSignedOut, At: time.Now()})
	}()

	if session == nil || p.revokeURL == "" {
		return nil
	}
	token, hint := session.Credential.RefreshToken, "refresh_token"
	if token == "" {
		token, hint = session.Credential.AccessToken, "access_token"
	}
	return p.revoke(ctx, token, hint)
}

func (p *OIDCProvider) GetSession(ctx context.Context) (_ *Session, err error) {
	session, err := p.current()
	if err != nil || session == nil {
		return nil, err
	}
	if session.Credential.Valid() {
		return session.Clone(), nil
	}
	if session.Credential.RefreshToken == "" {
		log.Info().Msg("Auth session expired without a refresh token")
		p.setSession(nil)
		p.events.Publish(Event{Type: EventSignedOut, At: time.Now()})
		return nil, nil
	}

	ctx, done := p.observe(ctx, "refresh")
	defer func() { done(err) }()

	refreshed, err := p.refresh(ctx, session.Credential)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidCredentials) {
			p.setSession(nil)
			p.events.Publish(Event{Type: EventSignedOut, At: time.Now()})
		}
		return nil, err
	}

	session.Credential = refreshed
	p.setSession(session)
	p.events.Publish(Event{Type: EventTokenRefreshed, Session: session.Clone(), At: time.Now()})
	return session.Clone(), nil
}

func (p *OIDCProvider) GetUser(ctx context.Context) (_ *identity.Identity, err error) {
	session, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrNotAuthenticated
	}

	ctx, done := p.observe(ctx, "get_user")
	defer func() { done(err) }()

	info, err := p.oidc.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(session.Credential.OAuth2Token()))
	if err != nil {
		return nil, &Error{Code: "userinfo", Message: err.Error(), Err: apperrors.ErrProviderUnavailable}
	}
	user := identity.Identity{ID: info.Subject, Email: info.Email, EmailVerified: info.EmailVerified}
	var claims struct {
		Name string `json:"name"`
	}
	if err := info.Claims(&claims); err == nil {
		user.Name = claims.Name
	}
	return &user, nil
}

func (p *OIDCProvider) Subscribe() (<-chan Event, func()) {
	return p.events.Subscribe()
}

// TokenSource returns the current access token, refreshing it when
// expired. It fails with ErrNotAuthenticated when signed out.
func (p *OIDCProvider) TokenSource() oauth2.TokenSource {
	return sessionTokenSource{get: p.GetSession}
}

// WatchStore emits change events when another process signs in or out
// through the same store. It blocks until ctx is done.
func (p *OIDCProvider) WatchStore(ctx context.Context) error {
	w, ok := p.store.(storage.Watcher)
	if !ok {
		return storage.ErrWatchUnsupported
	}
	return w.Watch(ctx, func(key string) {
		if key != KeyAuthSession {
			return
		}
		p.reloadFromStore()
	})
}

// Close stops event delivery to every subscriber.
func (p *OIDCProvider) Close() {
	p.events.Close()
}

func (p *OIDCProvider) reloadFromStore() {
	stored, err := p.readStore()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to reload auth session from storage")
		return
	}

	p.mu.Lock()
	previous := p.session
	p.session = stored
	p.loaded = true
	p.mu.Unlock()

	switch {
	case stored == nil && previous == nil:
		return
	case stored == nil:
		p.events.Publish(Event{Type: EventSignedOut, At: time.Now()})
	case previous == nil || previous.User.ID != stored.User.ID:
		p.events.Publish(Event{Type: EventSignedIn, Session: stored.Clone(), At: time.Now()})
	case previous.Credential.AccessToken != stored.Credential.AccessToken:
		p.events.Publish(Event{Type: EventTokenRefreshed, Session: stored.Clone(), At: time.Now()})
	}
}

// refreshGrant is the default RefreshFunc.
func (p *OIDCProvider) refreshGrant(ctx context.Context, old identity.Credential) (identity.Credential, error) {
	tok, err := p.oauth.TokenSource(p.clientContext(ctx), old.OAuth2Token()).Token()
	if err != nil {
		return identity.Credential{}, fromRetrieveError(err)
	}
	cred := identity.FromOAuth2Token(tok, old.RefreshToken)
	if cred.IDToken == "" {
		cred.IDToken = old.IDToken
	}
	return cred, nil
}

// identityFor verifies the ID token when one was issued and falls back to
// the userinfo endpoint otherwise.
func (p *OIDCProvider) identityFor(ctx context.Context, cred identity.Credential) (identity.Identity, error) {
	if cred.IDToken != "" {
		idToken, err := p.verifier.Verify(p.clientContext(ctx), cred.IDToken)
		if err != nil {
			return identity.Identity{}, &Error{Code: "invalid_id_token", Message: "ID token verification failed", Err: err}
		}
		var claims struct {
			Sub           string `json:"sub"`
			Email         string `json:"email"`
			Name          string `json:"name"`
			EmailVerified bool   `json:"email_verified"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return identity.Identity{}, fmt.Errorf("failed to extract claims: %w", err)
		}
		return identity.Identity{ID: claims.Sub, Email: claims.Email, Name: claims.Name, EmailVerified: claims.EmailVerified}, nil
	}

	info, err := p.oidc.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(cred.OAuth2Token()))
	if err != nil {
		return identity.Identity{}, &Error{Code: "userinfo", Message: err.Error(), Err: apperrors.ErrProviderUnavailable}
	}
	return identity.Identity{ID: info.Subject, Email: info.Email, EmailVerified: info.EmailVerified}, nil
}

func (p *OIDCProvider) revoke(ctx context.Context, token, hint string) error {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {hint},
		"client_id":       {p.oauth.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &Error{Code: "unavailable", Message: err.Error(), Err: apperrors.ErrProviderUnavailable}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		msg := body.ErrorDescription
		if msg == "" {
			msg = "token revocation failed: " + resp.Status
		}
		return &Error{Code: body.Error, Message: msg, Err: apperrors.ErrProviderUnavailable}
	}
	return nil
}

func (p *OIDCProvider) current() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		stored, err := p.readStore()
		if err != nil {
			return nil, err
		}
		p.session = stored
		p.loaded = true
	}
	return p.session.Clone(), nil
}

func (p *OIDCProvider) setSession(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s.Clone()
	p.loaded = true
	if err := p.writeStore(s); err != nil {
		log.Error().Err(err).Msg("Failed to persist auth session")
	}
}

func (p *OIDCProvider) readStore() (*Session, error) {
	raw, ok, err := p.store.Get(KeyAuthSession)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth session: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		log.Warn().Err(err).Msg("Discarding unreadable auth session")
		return nil, nil
	}
	return &s, nil
}

func (p *OIDCProvider) writeStore(s *Session) error {
	if s == nil {
		return p.store.Delete(KeyAuthSession)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.store.Set(KeyAuthSession, string(data))
}

func (p *OIDCProvider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

// observe starts a span and returns a func recording its outcome.
func (p *OIDCProvider) observe(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanProviderCall, tracer.String(tracer.AttrOperation, op))
	start := time.Now()
	return ctx, func(err error) {
		p.metrics.RecordProviderCall(op, err)
		span.SetAttributes(tracer.Duration("elapsed", time.Since(start)))
		span.End(err)
		if err != nil {
			log.Debug().Err(err).Str("operation", op).Msg("Auth provider call failed")
		}
	}
}

type sessionTokenSource struct {
	get func(ctx context.Context) (*Session, error)
}

func (s sessionTokenSource) Token() (*oauth2.Token, error) {
	session, err := s.get(context.Background())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return session.Credential.OAuth2Token(), nil
}
