// Package oidctest runs an in-process OpenID Connect issuer for provider
// tests: discovery, JWKS, the password and refresh_token grants, userinfo
// and token revocation.
package oidctest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// Issuer is a running test issuer. Use URL as the issuer URL.
type Issuer struct {
	URL      string
	ClientID string

	// AccessTokenTTL is the lifetime of issued access and ID tokens.
	AccessTokenTTL time.Duration
	// OmitExpiresIn leaves expires_in out of token responses.
	OmitExpiresIn bool

	server *httptest.Server
	keys   *KeyPair

	mu            sync.Mutex
	users         map[string]*User  // email -> user
	refreshTokens map[string]string // refresh token -> email
	revoked       []string
	tokenRequests int
	failTokens    int
}

// New starts an issuer that accepts clientID. Close it with t.Cleanup.
func New(clientID string) (*Issuer, error) {
	keys, err := GenerateRSAKeyPair("test-key-" + uuid.NewString()[:8])
	if err != nil {
		return nil, err
	}

	iss := &Issuer{
		ClientID:       clientID,
		AccessTokenTTL: time.Hour,
		keys:           keys,
		users:          make(map[string]*User),
		refreshTokens:  make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", iss.discoveryHandler)
	mux.HandleFunc("/.well-known/jwks.json", iss.jwksHandler)
	mux.HandleFunc("/oauth2/token", iss.tokenHandler)
	mux.HandleFunc("/oauth2/revoke", iss.revokeHandler)
	mux.HandleFunc("/userinfo", iss.userInfoHandler)

	iss.server = httptest.NewServer(mux)
	iss.URL = iss.server.URL
	return iss, nil
}

func (iss *Issuer) Close() {
	iss.server.Close()
}

// Client returns an HTTP client wired to the issuer's server.
func (iss *Issuer) Client() *http.Client {
	return iss.server.Client()
}

// AddUser registers an account with a bcrypt-hashed password.
func (iss *Issuer) AddUser(email, password, name string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	u := &User{ID: uuid.NewString(), Email: email, Name: name, PasswordHash: string(hash)}

	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.users[email] = u
	return u, nil
}

// Revoked lists the tokens passed to the revocation endpoint.
func (iss *Issuer) Revoked() []string {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return append([]string(nil), iss.revoked...)
}

// TokenRequests counts calls to the token endpoint.
func (iss *Issuer) TokenRequests() int {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return iss.tokenRequests
}

// FailNextTokenRequests makes the next n token calls answer 503.
func (iss *Issuer) FailNextTokenRequests(n int) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.failTokens = n
}

// RevokeAllRefreshTokens forgets every issued refresh token, as when the
// account's sessions are terminated elsewhere.
func (iss *Issuer) RevokeAllRefreshTokens() {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.refreshTokens = make(map[string]string)
}

func (iss *Issuer) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"issuer":                                iss.URL,
		"authorization_endpoint":                iss.URL + "/oauth2/authorize",
		"token_endpoint":                        iss.URL + "/oauth2/token",
		"userinfo_endpoint":                     iss.URL + "/userinfo",
		"jwks_uri":                              iss.URL + "/.well-known/jwks.json",
		"revocation_endpoint":                   iss.URL + "/oauth2/revoke",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{RS256},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
		"grant_types_supported":                 []string{"password", "refresh_token"},
		"token_endpoint_auth_methods_supported": []string{"none"},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (iss *Issuer) jwksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, iss.keys.JWKS())
}

func (iss *Issuer) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
		return
	}

	iss.mu.Lock()
	iss.tokenRequests++
	if iss.failTokens > 0 {
		iss.failTokens--
		iss.mu.Unlock()
		writeOAuthError(w, "temporarily_unavailable", "Issuer is down", http.StatusServiceUnavailable)
		return
	}
	iss.mu.Unlock()

	if r.FormValue("client_id") != iss.ClientID {
		writeOAuthError(w, "invalid_client", "Unknown client", http.StatusUnauthorized)
		return
	}

	var user *User
	switch r.FormValue("grant_type") {
	case "password":
		user = iss.checkPassword(r.FormValue("username"), r.FormValue("password"))
		if user == nil {
			writeOAuthError(w, "invalid_grant", "Invalid login credentials", http.StatusBadRequest)
			return
		}
	case "refresh_token":
		user = iss.consumeRefreshToken(r.FormValue("refresh_token"))
		if user == nil {
			writeOAuthError(w, "invalid_grant", "Invalid Refresh Token", http.StatusBadRequest)
			return
		}
	default:
		writeOAuthError(w, "unsupported_grant_type", "Unsupported grant type", http.StatusBadRequest)
		return
	}

	resp, err := iss.issueTokens(user, strings.Fields(r.FormValue("scope")))
	if err != nil {
		writeOAuthError(w, "server_error", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (iss *Issuer) userInfoHandler(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		writeOAuthError(w, "invalid_token", "Missing bearer token", http.StatusUnauthorized)
		return
	}
	claims, err := iss.keys.Parse(raw)
	if err != nil {
		writeOAuthError(w, "invalid_token", "Invalid access token", http.StatusUnauthorized)
		return
	}
	email, _ := claims["email"].(string)

	iss.mu.Lock()
	user := iss.users[email]
	iss.mu.Unlock()
	if user == nil {
		writeOAuthError(w, "invalid_token", "Unknown user", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sub":            user.ID,
		"email":          user.Email,
		"email_verified": true,
		"name":           user.Name,
	})
}

func (iss *Issuer) revokeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
		return
	}
	token := r.FormValue("token")
	if token == "" {
		writeOAuthError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
		return
	}

	iss.mu.Lock()
	delete(iss.refreshTokens, token)
	iss.revoked = append(iss.revoked, token)
	iss.mu.Unlock()

	// RFC 7009: unknown tokens are not an error.
	w.WriteHeader(http.StatusOK)
}

func (iss *Issuer) checkPassword(email, password string) *User {
	iss.mu.Lock()
	user := iss.users[email]
	iss.mu.Unlock()
	if user == nil {
		return nil
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil
	}
	return user
}

// consumeRefreshToken rotates refresh tokens: each one is single use.
func (iss *Issuer) consumeRefreshToken(token string) *User {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	email, ok := iss.refreshTokens[token]
	if !ok {
		return nil
	}
	delete(iss.refreshTokens, token)
	return iss.users[email]
}

func (iss *Issuer) issueTokens(user *User, scopes []string) (map[string]any, error) {
	now := NowTimeFunc()
	exp := now.Add(iss.AccessTokenTTL)

	access, err := iss.keys.Sign(jwt.MapClaims{
		"iss":   iss.URL,
		"aud":   iss.ClientID,
		"sub":   user.ID,
		"email": user.Email,
		"scope": strings.Join(scopes, " "),
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	iss.mu.Lock()
	iss.refreshTokens[refresh] = user.Email
	iss.mu.Unlock()

	resp := map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"refresh_token": refresh,
	}
	if !iss.OmitExpiresIn {
		resp["expires_in"] = int(iss.AccessTokenTTL.Seconds())
	}

	for _, s := range scopes {
		if s != "openid" {
			continue
		}
		idToken, err := iss.keys.Sign(jwt.MapClaims{
			"iss":            iss.URL,
			"sub":            user.ID,
			"aud":            iss.ClientID,
			"email":          user.Email,
			"email_verified": true,
			"name":           user.Name,
			"iat":            now.Unix(),
			"exp":            exp.Unix(),
			"jti":            uuid.NewString(),
		})
		if err != nil {
			return nil, err
		}
		resp["id_token"] = idToken
	}
	return resp, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, code, description string, status int) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
