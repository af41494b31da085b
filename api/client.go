// Package api wraps every backend endpoint. Each call attaches the current
// bearer token and normalizes failures into *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/internal/logging"
	"github.com/matt-kaep/WI-frontend/internal/metrics"
	"github.com/matt-kaep/WI-frontend/internal/tracer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// maxLoggedBody caps how much of a non-JSON error body reaches the log.
const maxLoggedBody = 500

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the backend API. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	tokens  oauth2.TokenSource
	http    HTTPDoer
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Client)

func WithHTTPClient(c HTTPDoer) Option {
	return func(cl *Client) { cl.http = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(cl *Client) { cl.tracer = t }
}

// New creates a client for baseURL. tokens supplies the bearer token for
// each call; a nil source sends every request unauthenticated.
func New(baseURL string, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, apperrors.ErrMissingConfig)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL: u,
		tokens:  tokens,
		http:    http.DefaultClient,
		tracer:  tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request describes one backend call.
type request struct {
	endpoint    string // metrics and span label
	method      string
	path        string // relative to the base URL, ids already escaped
	query       url.Values
	body        io.Reader
	contentType string
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// do sends r and decodes a 2xx JSON body into out, when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, tracer.SpanBackendCall,
		tracer.String(tracer.AttrEndpoint, r.endpoint),
		tracer.String(tracer.AttrMethod, r.method),
		tracer.String(tracer.AttrRequestID, requestID),
	)
	start := time.Now()
	statusCode := 0
	defer func() {
		c.metrics.RecordRequest(r.endpoint, statusCode, time.Since(start).Seconds())
		span.SetAttributes(tracer.Int(tracer.AttrStatusCode, statusCode))
		span.End(err)
	}()

	logger := log.With().Str("endpoint", r.endpoint).Str("request_id", requestID).Logger()

	rawPath := strings.TrimPrefix(r.path, "/")
	unescaped, err := url.PathUnescape(rawPath)
	if err != nil {
		return fmt.Errorf("[api %s] failed to build request: %w", r.endpoint, err)
	}
	target := c.baseURL.ResolveReference(&url.URL{Path: unescaped, RawPath: rawPath})
	if len(r.query) > 0 {
		target.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target.String(), r.body)
	if err != nil {
		return fmt.Errorf("[api %s] failed to build request: %w", r.endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	c.authorize(req, &logger)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("Backend request failed")
		return &Error{Message: fmt.Sprintf("network error: %v", err), Err: err}
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.responseError(resp, &logger)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Status: statusText(resp), Message: fmt.Sprintf("failed to read response: %v", err), Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Error().Err(err).Str("body", logging.Truncate(string(data), maxLoggedBody)).Msg("Backend returned invalid JSON")
		return fmt.Errorf("[api %s] %w", r.endpoint, apperrors.ErrInvalidResponse)
	}
	return nil
}

// authorize attaches the bearer token. A missing credential is logged and
// the request still goes out, the backend rejects it with an HTTP error.
func (c *Client) authorize(req *http.Request, logger *zerolog.Logger) {
	if c.tokens == nil {
		logger.Warn().Msg("No credential source, sending request without Authorization")
		return
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		logger.Warn().Err(err).Msg("No credential available, sending request without Authorization")
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
}

// responseError turns a non-2xx response into *Error. Non-JSON bodies are
// logged and never copied into the message.
func (c *Client) responseError(resp *http.Response, logger *zerolog.Logger) error {
	text := statusText(resp)
	apiErr := &Error{
		StatusCode: resp.StatusCode,
		Status:     text,
		Message:    fallbackMessage(resp.StatusCode, text),
	}

	data, _ := io.ReadAll(resp.Body)
	if isJSON(resp.Header.Get("Content-Type")) {
		var body errorBody
		if err := json.Unmarshal(data, &body); err == nil {
			if msg := body.text(); msg != "" {
				apiErr.Message = msg
			}
		}
		logger.Warn().Int("status", resp.StatusCode).Str("message", apiErr.Message).Msg("Backend returned an error")
		return apiErr
	}

	logger.Warn().Int("status", resp.StatusCode).Msg("Backend returned a non-JSON error")
	logger.Debug().Str("body", logging.Truncate(string(data), maxLoggedBody)).Msg("Non-JSON error body")
	return apiErr
}
