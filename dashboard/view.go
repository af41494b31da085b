// Package dashboard is the view model behind the dashboard page: session
// counters, the connections export upload, and processing status polling.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/matt-kaep/WI-frontend/api"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/internal/metrics"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/notice"
	"github.com/matt-kaep/WI-frontend/validation"
)

const DefaultPollInterval = 3 * time.Second

type Backend interface {
	SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error)
	SessionStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error)
	UploadConnections(ctx context.Context, u api.Upload) (*models.UploadResult, error)
}

type SessionSource interface {
	CurrentSession() *models.WorkSession
}

// Upload is a connections export picked by the user.
type Upload struct {
	FileName    string
	ContentType string
	LinkedInURL string
	File        io.Reader
}

type View struct {
	backend      Backend
	sessions     SessionSource
	notices      *notice.Board
	validator    *validation.Validator
	metrics      *metrics.Metrics
	pollInterval time.Duration
	nowTime      func() time.Time

	mu        sync.Mutex
	stats     *models.SessionStats
	status    *models.SessionStatus
	uploading bool
	err       error
	stopPoll  context.CancelFunc
	pollDone  chan struct{}
}

type Option func(*View)

func WithPollInterval(d time.Duration) Option {
	return func(v *View) {
		if d > 0 {
			v.pollInterval = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *View) { v.metrics = m }
}

// WithNowTime sets the clock used to stamp uploads (primarily for testing).
func WithNowTime(now func() time.Time) Option {
	return func(v *View) { v.nowTime = now }
}

func NewView(backend Backend, sessions SessionSource, notices *notice.Board, opts ...Option) *View {
	v := &View{
		backend:      backend,
		sessions:     sessions,
		notices:      notices,
		validator:    validation.NewValidator(),
		pollInterval: DefaultPollInterval,
		nowTime:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *View) currentID(op string) (string, error) {
	s := v.sessions.CurrentSession()
	if s == nil {
		return "", apperrors.Wrapf(apperrors.ErrNoActiveSession, "[Dashboard %s]", op)
	}
	return s.ID, nil
}

// Refresh fetches the counters and the processing status of the current
// session together. A failed half keeps its previous value.
func (v *View) Refresh(ctx context.Context) error {
	sessionID, err := v.currentID("Refresh")
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		stats, err := v.backend.SessionStats(ctx, sessionID)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("[Dashboard Refresh] failed to load stats")
			return err
		}
		v.mu.Lock()
		v.stats = stats
		v.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		status, err := v.fetchStatus(ctx, sessionID)
		if err != nil {
			return err
		}
		if status.Status.InProgress() {
			v.startPolling(ctx, sessionID, status)
		}
		return nil
	})
	return g.Wait()
}

func (v *View) fetchStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	status, err := v.backend.SessionStatus(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("[Dashboard Status] failed to load status")
		return nil, err
	}
	v.metrics.RecordStatusPoll(string(status.Status))
	v.mu.Lock()
	v.status = status
	v.mu.Unlock()
	return status, nil
}

// Upload validates and sends a connections export. On success the
// counters are taken from the upload result and polling starts.
func (v *View) Upload(ctx context.Context, u Upload) (*models.UploadResult, error) {
	if err := v.validator.ValidateUpload(u.FileName, u.ContentType, u.LinkedInURL); err != nil {
		return nil, v.fail(err)
	}
	if u.File == nil {
		return nil, v.fail(apperrors.ErrMissingFile)
	}
	sessionID, err := v.currentID("Upload")
	if err != nil {
		return nil, v.fail(err)
	}

	v.mu.Lock()
	v.uploading = true
	v.err = nil
	v.mu.Unlock()

	result, err := v.backend.UploadConnections(ctx, api.Upload{
		SessionID:   sessionID,
		LinkedInURL: u.LinkedInURL,
		FileName:    u.FileName,
		File:        u.File,
	})

	v.mu.Lock()
	v.uploading = false
	v.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("file", u.FileName).Msg("[Dashboard Upload] upload failed")
		err = fmt.Errorf("upload failed: %w", err)
		v.notices.Post(notice.Error, err.Error())
		return nil, v.fail(err)
	}

	v.mu.Lock()
	v.stats = &models.SessionStats{
		ConnectionCount: result.ConnectionCount,
		ProfileCount:    result.ProfileCount,
		ProspectCount:   result.ProspectCount,
		LastActivity:    v.nowTime().UTC().Format(time.RFC3339),
		FileName:        u.FileName,
	}
	v.mu.Unlock()

	v.notices.Post(notice.Success, fmt.Sprintf("%s uploaded, %d connections", u.FileName, result.ConnectionCount))
	v.startPolling(ctx, sessionID, nil)
	return result, nil
}

// Poll fetches the status until processing is no longer in progress, the
// context ends or a fetch fails. A failed fetch keeps the last status.
func (v *View) Poll(ctx context.Context) error {
	sessionID, err := v.currentID("Poll")
	if err != nil {
		return err
	}
	return v.poll(ctx, sessionID, nil)
}

// poll starts from last when it is known, else with a fetch.
func (v *View) poll(ctx context.Context, sessionID string, last *models.SessionStatus) error {
	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()
	for {
		if last == nil {
			status, err := v.fetchStatus(ctx, sessionID)
			if err != nil {
				return err
			}
			last = status
		}
		if !last.Status.InProgress() {
			log.Debug().Str("session_id", sessionID).Str("status", string(last.Status)).Msg("Processing finished")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		last = nil
	}
}

// StartPolling runs Poll in the background, replacing a poll already
// running. Wait blocks until it ends.
func (v *View) StartPolling(ctx context.Context) {
	sessionID, err := v.currentID("Poll")
	if err != nil {
		log.Warn().Err(err).Msg("[Dashboard Poll] nothing to poll")
		return
	}
	v.startPolling(ctx, sessionID, nil)
}

func (v *View) startPolling(ctx context.Context, sessionID string, last *models.SessionStatus) {
	v.StopPolling()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	v.mu.Lock()
	v.stopPoll = cancel
	v.pollDone = done
	v.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := v.poll(ctx, sessionID, last); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("[Dashboard Poll] status polling stopped")
		}
	}()
}

// StopPolling cancels the background poll and waits for it to return.
func (v *View) StopPolling() {
	v.mu.Lock()
	cancel, done := v.stopPoll, v.pollDone
	v.stopPoll, v.pollDone = nil, nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the background poll, if any, has ended.
func (v *View) Wait() {
	v.mu.Lock()
	done := v.pollDone
	v.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (v *View) Stats() *models.SessionStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stats == nil {
		return nil
	}
	s := *v.stats
	return &s
}

func (v *View) Status() *models.SessionStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.status == nil {
		return nil
	}
	s := *v.status
	return &s
}

func (v *View) Uploading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.uploading
}

func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *View) fail(err error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
	return err
}
