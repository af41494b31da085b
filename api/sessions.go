package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/matt-kaep/WI-frontend/models"
)

// sessionPath builds session/{id}{suffix} with id escaped as one segment.
func sessionPath(id string, suffix string) string {
	return "session/" + url.PathEscape(id) + suffix
}

// ListSessions returns every work session owned by the caller.
func (c *Client) ListSessions(ctx context.Context) ([]models.WorkSession, error) {
	var sessions []models.WorkSession
	if err := c.do(ctx, request{endpoint: "session.all", method: http.MethodGet, path: "session/all"}, &sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []models.WorkSession{}
	}
	return sessions, nil
}

// CreateSession registers a new work session for userID.
func (c *Client) CreateSession(ctx context.Context, userID, name string, description *string) (*models.WorkSession, error) {
	body, err := jsonBody(models.CreateSessionRequest{
		UserID:      userID,
		Name:        name,
		Description: description,
		Source:      models.SessionSourceClient,
	})
	if err != nil {
		return nil, err
	}
	var session models.WorkSession
	err = c.do(ctx, request{
		endpoint:    "session.create",
		method:      http.MethodPost,
		path:        "session/create",
		body:        body,
		contentType: "application/json",
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	var stats models.SessionStats
	if err := c.do(ctx, request{endpoint: "session.stats", method: http.MethodGet, path: sessionPath(sessionID, "/stats")}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	var status models.SessionStatus
	if err := c.do(ctx, request{endpoint: "session.status", method: http.MethodGet, path: sessionPath(sessionID, "/status")}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CurrentSession returns the server-side active session, or nil when the
// caller has none yet.
func (c *Client) CurrentSession(ctx context.Context) (*models.WorkSession, error) {
	var session models.WorkSession
	err := c.do(ctx, request{endpoint: "session.current", method: http.MethodGet, path: "session/current"}, &session)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ActivateSession marks sessionID as the caller's active session.
func (c *Client) ActivateSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, request{endpoint: "session.activate", method: http.MethodPost, path: sessionPath(sessionID, "/activate")}, nil)
}

// DeleteSession deletes the session and everything imported into it.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (*models.DeleteResult, error) {
	var result models.DeleteResult
	if err := c.do(ctx, request{endpoint: "session.delete", method: http.MethodGet, path: "session/delete/" + url.PathEscape(sessionID)}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
