package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/matt-kaep/WI-frontend/models"
)

// FindProspects searches for candidate profiles matching filter.
func (c *Client) FindProspects(ctx context.Context, filter models.ProspectFilter) ([]models.Prospect, error) {
	body, err := jsonBody(filter)
	if err != nil {
		return nil, err
	}
	var prospects []models.Prospect
	err = c.do(ctx, request{
		endpoint:    "find_prospects",
		method:      http.MethodPost,
		path:        "find-prospects/",
		body:        body,
		contentType: "application/json",
	}, &prospects)
	if err != nil {
		return nil, err
	}
	return nonNilProspects(prospects), nil
}

// ComputeProspectConnections scores prospects against their focus profile.
func (c *Client) ComputeProspectConnections(ctx context.Context, prospects []models.Prospect) ([]models.Prospect, error) {
	if prospects == nil {
		prospects = []models.Prospect{}
	}
	body, err := jsonBody(prospects)
	if err != nil {
		return nil, err
	}
	var scored []models.Prospect
	err = c.do(ctx, request{
		endpoint:    "prospects_connections",
		method:      http.MethodPost,
		path:        "prospects-connections/",
		body:        body,
		contentType: "application/json",
	}, &scored)
	if err != nil {
		return nil, err
	}
	return nonNilProspects(scored), nil
}

// SessionProspects returns the prospects saved for a session.
func (c *Client) SessionProspects(ctx context.Context, sessionID string) ([]models.Prospect, error) {
	var prospects []models.Prospect
	path := "sessions/" + url.PathEscape(sessionID) + "/prospects"
	if err := c.do(ctx, request{endpoint: "sessions.prospects", method: http.MethodGet, path: path}, &prospects); err != nil {
		return nil, err
	}
	return nonNilProspects(prospects), nil
}

// ProfileResume returns basic info, experience and education for a profile.
func (c *Client) ProfileResume(ctx context.Context, profileID string) (*models.ProfileResume, error) {
	var resume models.ProfileResume
	err := c.do(ctx, request{
		endpoint: "profile_resume",
		method:   http.MethodGet,
		path:     "profile_resume/",
		query:    url.Values{"profile_id": {profileID}},
	}, &resume)
	if err != nil {
		return nil, err
	}
	return &resume, nil
}

func nonNilProspects(p []models.Prospect) []models.Prospect {
	if p == nil {
		return []models.Prospect{}
	}
	return p
}
