package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/matt-kaep/WI-frontend/models"
)

const (
	DefaultMinSimilarity = 0.0
	DefaultMaxResults    = 1000
)

// Upload is one connections export sent to /upload-connections/.
type Upload struct {
	SessionID   string
	LinkedInURL string
	FileName    string
	File        io.Reader
}

// UploadConnections sends a connections CSV as multipart form data.
func (c *Client) UploadConnections(ctx context.Context, u Upload) (*models.UploadResult, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", u.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, u.File); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := form.WriteField("session_id", u.SessionID); err != nil {
		return nil, err
	}
	if err := form.WriteField("user_personal_linkedin_account_url", u.LinkedInURL); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	var result models.UploadResult
	err = c.do(ctx, request{
		endpoint:    "upload_connections",
		method:      http.MethodPost,
		path:        "upload-connections/",
		body:        &buf,
		contentType: form.FormDataContentType(),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RecomputeConnections asks the backend to score the active session's
// connections again.
func (c *Client) RecomputeConnections(ctx context.Context, minSimilarity float64, maxResults int) ([]models.Connection, error) {
	query := url.Values{
		"min_similarity": {strconv.FormatFloat(minSimilarity, 'f', -1, 64)},
		"max_results":    {strconv.Itoa(maxResults)},
	}
	var list models.ConnectionList
	if err := c.do(ctx, request{endpoint: "user_connections", method: http.MethodGet, path: "user-connections", query: query}, &list); err != nil {
		return nil, err
	}
	return nonNil(list), nil
}

// ExistingConnections returns the connections computed earlier.
func (c *Client) ExistingConnections(ctx context.Context) ([]models.Connection, error) {
	var list models.ConnectionList
	if err := c.do(ctx, request{endpoint: "connections.existing", method: http.MethodGet, path: "connections/existing"}, &list); err != nil {
		return nil, err
	}
	return nonNil(list), nil
}

func (c *Client) FavoriteConnections(ctx context.Context) ([]models.Connection, error) {
	var list models.ConnectionList
	if err := c.do(ctx, request{endpoint: "connections.favorites", method: http.MethodGet, path: "connections/favorites"}, &list); err != nil {
		return nil, err
	}
	return nonNil(list), nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (c *Client) ToggleFavorite(ctx context.Context, connectionID int64) (bool, error) {
	var result models.FavoriteToggle
	path := "connections/" + strconv.FormatInt(connectionID, 10) + "/toggle-favorite"
	if err := c.do(ctx, request{endpoint: "connections.toggle_favorite", method: http.MethodPatch, path: path}, &result); err != nil {
		return false, err
	}
	return result.IsFavorite, nil
}

// InsertConnection adds one connection by its LinkedIn profile URL.
func (c *Client) InsertConnection(ctx context.Context, linkedInURL string) (*models.NewConnectionResult, error) {
	var result models.NewConnectionResult
	err := c.do(ctx, request{
		endpoint: "insert_new_connection",
		method:   http.MethodPost,
		path:     "insert_new_connection",
		query:    url.Values{"linkedin_url": {linkedInURL}},
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func nonNil(list models.ConnectionList) []models.Connection {
	if list == nil {
		return []models.Connection{}
	}
	return list
}
