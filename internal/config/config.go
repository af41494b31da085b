package config

import (
	"fmt"
	"time"

	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
)

type Config interface {
	EnvConfig
	BackendConfig
	AuthProviderConfig
	ViewConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetLogLevel() string
	GetDataFolder() string
	GetMetricsAddr() string
}

type BackendConfig interface {
	GetBackendBaseURL() string
}

type AuthProviderConfig interface {
	GetAuthProviderURL() string
	GetAuthProviderKey() string
	GetAuthScopes() []string
}

type ViewConfig interface {
	GetStatusPollInterval() time.Duration
	GetNoticeDuration() time.Duration
}

type mainConfig struct {
	EnvVars
	Backend
	AuthProvider
	Views
}

func New() Config {
	return mainConfig{}
}

// Validate checks the settings the client cannot start without.
func Validate(c AuthProviderConfig) error {
	if c.GetAuthProviderURL() == "" {
		return fmt.Errorf("%s is not set: %w", authProviderURLVar, apperrors.ErrMissingConfig)
	}
	if c.GetAuthProviderKey() == "" {
		return fmt.Errorf("%s is not set: %w", authProviderKeyVar, apperrors.ErrMissingConfig)
	}
	return nil
}
