package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	envVar             = "ENV"
	appNameVar         = "APP_NAME"
	logLevelVar        = "LOG_LEVEL"
	folderEnvVar       = "DATA_FOLDER"
	metricsAddrVar     = "METRICS_ADDR"
	apiBaseURLVar      = "API_BASE_URL"
	authProviderURLVar = "AUTH_PROVIDER_URL"
	authProviderKeyVar = "AUTH_PROVIDER_KEY"
	authScopesVar      = "AUTH_SCOPES"
	pollIntervalVar    = "STATUS_POLL_INTERVAL"
	noticeDurationVar  = "NOTICE_DURATION"
)

const (
	defaultPollInterval   = 3 * time.Second
	minNoticeDuration     = 5 * time.Second
	maxNoticeDuration     = 10 * time.Second
	defaultBackendBaseURL = "http://localhost:8000/"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "WI Prospector")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetDataFolder is where the credential cache and remembered session id live.
func (EnvVars) GetDataFolder() string {
	if folder := GetEnv(folderEnvVar, ""); folder != "" {
		return folder
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.wi"
	}
	return filepath.Join(home, ".wi")
}

func (EnvVars) GetMetricsAddr() string {
	return GetEnv(metricsAddrVar, "")
}

type Backend struct{}

var _ BackendConfig = Backend{}

func (Backend) GetBackendBaseURL() string {
	return GetEnv(apiBaseURLVar, defaultBackendBaseURL)
}

type AuthProvider struct{}

var _ AuthProviderConfig = AuthProvider{}

// GetAuthProviderURL returns the issuer URL of the auth provider.
func (AuthProvider) GetAuthProviderURL() string {
	return GetEnv(authProviderURLVar, "")
}

// GetAuthProviderKey returns the public client key registered with the provider.
func (AuthProvider) GetAuthProviderKey() string {
	return GetEnv(authProviderKeyVar, "")
}

func (AuthProvider) GetAuthScopes() []string {
	return strings.Fields(GetEnv(authScopesVar, "openid profile email offline_access"))
}

type Views struct{}

var _ ViewConfig = Views{}

func (Views) GetStatusPollInterval() time.Duration {
	return GetDuration(pollIntervalVar, defaultPollInterval)
}

// GetNoticeDuration is how long a notice stays visible, clamped to 5-10s.
func (Views) GetNoticeDuration() time.Duration {
	d := GetDuration(noticeDurationVar, minNoticeDuration)
	if d < minNoticeDuration {
		return minNoticeDuration
	}
	if d > maxNoticeDuration {
		return maxNoticeDuration
	}
	return d
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
