package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// expiryLeeway treats a credential as expired slightly early so a request
// never leaves with a token that dies in flight.
const expiryLeeway = 10 * time.Second

// Identity is the client's read-only copy of the provider's user record.
type Identity struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name,omitempty"`
	EmailVerified bool           `json:"email_verified,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Credential is the bearer token bundle issued by the auth provider.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Valid reports whether the credential carries an unexpired access token.
// A zero Expiry never expires.
func (c *Credential) Valid() bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return NowTimeFunc().Add(expiryLeeway).Before(c.Expiry)
}

// OAuth2Token converts the credential for use with golang.org/x/oauth2.
func (c Credential) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
	if c.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": c.IDToken})
	}
	return tok
}

// FromOAuth2Token builds a Credential from a token endpoint response.
// When the previous refresh token is not rotated, the old one is kept.
// Without expires_in, the expiry is read from a JWT access token's exp
// claim. Opaque tokens then never expire locally.
func FromOAuth2Token(tok *oauth2.Token, previousRefresh string) Credential {
	c := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
	if c.Expiry.IsZero() {
		if claims, err := ClaimsFromToken(tok.AccessToken); err == nil {
			c.Expiry = claims.ExpiresAt
		}
	}
	if c.RefreshToken == "" {
		c.RefreshToken = previousRefresh
	}
	if raw, ok := tok.Extra("id_token").(string); ok {
		c.IDToken = raw
	}
	return c
}

// RefreshFunc exchanges an old credential for a new one. It has no side
// effects on the caller's state.
type RefreshFunc func(ctx context.Context, old Credential) (Credential, error)

// Claims are the identity claims carried by a provider-issued JWT.
type Claims struct {
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
	ExpiresAt     time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}

// ClaimsFromToken reads claims from a JWT without checking its signature.
// It is only used on tokens this process received directly from the
// provider; signatures are checked by the provider implementation.
func ClaimsFromToken(raw string) (Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &tc); err != nil {
		return Claims{}, fmt.Errorf("failed to parse token claims: %w", err)
	}
	c := Claims{
		Subject:       tc.Subject,
		Email:         tc.Email,
		Name:          tc.Name,
		EmailVerified: tc.EmailVerified,
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c, nil
}

// Identity turns the claims into an Identity.
func (c Claims) Identity() Identity {
	return Identity{
		ID:            c.Subject,
		Email:         c.Email,
		Name:          c.Name,
		EmailVerified: c.EmailVerified,
	}
}
