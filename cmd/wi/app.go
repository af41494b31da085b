package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/matt-kaep/WI-frontend/api"
	"github.com/matt-kaep/WI-frontend/auth"
	"github.com/matt-kaep/WI-frontend/internal/config"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/internal/logging"
	"github.com/matt-kaep/WI-frontend/internal/metrics"
	"github.com/matt-kaep/WI-frontend/internal/tracer"
	"github.com/matt-kaep/WI-frontend/models"
	"github.com/matt-kaep/WI-frontend/notice"
	"github.com/matt-kaep/WI-frontend/provider"
	"github.com/matt-kaep/WI-frontend/sessions"
	"github.com/matt-kaep/WI-frontend/storage"
)

const (
	stateFileName        = "state.json"
	selectedProfilesKey  = "selectedProfiles."
	metricsShutdownGrace = 5 * time.Second
)

// app holds everything one command invocation needs.
type app struct {
	cfg      config.Config
	store    *storage.FileStore
	metrics  *metrics.Metrics
	provider *provider.OIDCProvider
	client   *api.Client
	auth     *auth.Controller
	sessions *sessions.Controller
	notices  *notice.Board

	metricsServer *http.Server
}

func newApp(ctx context.Context) (*app, error) {
	if err := config.LoadFile(config.ConfigFilePath()); err != nil {
		return nil, err
	}
	cfg := config.New()
	logging.Init(cfg.GetEnv(), cfg.GetLogLevel())
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.GetDataFolder(), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data folder: %w", err)
	}
	store, err := storage.NewFileStore(filepath.Join(cfg.GetDataFolder(), stateFileName))
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	t := tracer.NewOTel()

	p, err := provider.NewOIDCProvider(ctx, cfg.GetAuthProviderURL(), cfg.GetAuthProviderKey(), cfg.GetAuthScopes(),
		provider.WithStore(store),
		provider.WithMetrics(m),
		provider.WithTracer(t),
	)
	if err != nil {
		return nil, err
	}

	client, err := api.New(cfg.GetBackendBaseURL(), p.TokenSource(), api.WithMetrics(m), api.WithTracer(t))
	if err != nil {
		p.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		metrics:  m,
		provider: p,
		client:   client,
		notices:  notice.NewBoard(cfg.GetNoticeDuration()),
	}
	a.auth = auth.NewController(p, client)
	a.sessions = sessions.NewController(client, a.auth, store)
	a.startMetrics()
	return a, nil
}

// start restores the auth state and, when signed in, the session list.
func (a *app) start(ctx context.Context) error {
	a.auth.Start(ctx)
	select {
	case <-a.auth.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	a.sessions.Start(ctx)
	a.sessions.Wait()
	a.restoreSelection()
	return nil
}

func (a *app) close() {
	a.saveSelection()
	a.sessions.Close()
	a.auth.Close()
	a.provider.Close()
	a.stopMetrics()
}

// requireSignedIn fails when no user is signed in.
func (a *app) requireSignedIn() error {
	if !a.auth.State().IsAuthenticated() {
		return fmt.Errorf("sign in with `wi login` first: %w", apperrors.ErrNotAuthenticated)
	}
	return nil
}

// requireSession fails when no work session is selected.
func (a *app) requireSession() (*models.WorkSession, error) {
	if err := a.requireSignedIn(); err != nil {
		return nil, err
	}
	if err := a.sessions.Snapshot().Err; err != nil {
		return nil, err
	}
	current := a.sessions.CurrentSession()
	if current == nil {
		return nil, apperrors.ErrNoActiveSession
	}
	return current, nil
}

// restoreSelection puts back the profiles selected in an earlier run. Each
// run starts a new controller, so the selection is kept in the store.
func (a *app) restoreSelection() {
	current := a.sessions.CurrentSession()
	if current == nil {
		return
	}
	raw, ok, err := a.store.Get(selectedProfilesKey + current.ID)
	if err != nil || !ok {
		return
	}
	var selected []string
	if err := json.Unmarshal([]byte(raw), &selected); err != nil {
		log.Warn().Err(err).Str("session_id", current.ID).Msg("Ignoring unreadable profile selection")
		return
	}
	current.SelectedProfiles = selected
	a.sessions.UpdateSession(*current)
}

func (a *app) saveSelection() {
	current := a.sessions.CurrentSession()
	if current == nil {
		return
	}
	key := selectedProfilesKey + current.ID
	if len(current.SelectedProfiles) == 0 {
		_ = a.store.Delete(key)
		return
	}
	data, err := json.Marshal(current.SelectedProfiles)
	if err != nil {
		return
	}
	if err := a.store.Set(key, string(data)); err != nil {
		log.Warn().Err(err).Str("session_id", current.ID).Msg("Failed to save profile selection")
	}
}

// startMetrics serves /metrics when METRICS_ADDR is set.
func (a *app) startMetrics() {
	addr := a.cfg.GetMetricsAddr()
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metrics.Handler())
	a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics listening")
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()
}

func (a *app) stopMetrics() {
	if a.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownGrace)
	defer cancel()
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Metrics shutdown failed")
	}
}
