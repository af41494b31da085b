// Package provider defines the external auth provider contract and an
// OpenID Connect implementation of it.
package provider

import (
	"context"
	"time"

	"github.com/matt-kaep/WI-frontend/identity"
	"golang.org/x/oauth2"
)

// EventType names a provider auth state change.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Session pairs the credential with the identity it was issued to.
type Session struct {
	Credential identity.Credential `json:"credential"`
	User       identity.Identity   `json:"user"`
}

// Clone returns a copy that shares nothing mutable with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User.Metadata != nil {
		c.User.Metadata = make(map[string]any, len(s.User.Metadata))
		for k, v := range s.User.Metadata {
			c.User.Metadata[k] = v
		}
	}
	return &c
}

// Event is one auth state change notification. Session is nil after a
// sign-out. At is when the provider observed the change.
type Event struct {
	Type    EventType
	Session *Session
	At      time.Time
}

// Provider is the managed auth provider the client delegates identity to.
type Provider interface {
	// SignInWithPassword signs in and emits EventSignedIn.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignInWithOTP sends a one-time sign-in link to email.
	SignInWithOTP(ctx context.Context, email string) error
	// SignUp registers a new account. The session is nil when the provider
	// requires email confirmation first.
	SignUp(ctx context.Context, email, password string) (*Session, error)
	// SignOut ends the session. Local state is cleared even when the
	// provider call fails.
	SignOut(ctx context.Context) error
	// GetSession returns the current session, refreshing an expired
	// credential when possible. It returns nil, nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// GetUser fetches the identity record for the current session.
	GetUser(ctx context.Context) (*identity.Identity, error)
	// Subscribe returns a channel of state changes and a func that
	// unsubscribes and closes the channel.
	Subscribe() (<-chan Event, func())
	// TokenSource yields the current access token for API calls.
	TokenSource() oauth2.TokenSource
}
