package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matt-kaep/WI-frontend/internal/config"
	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("missing provider url is a hard failure", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER_URL", "")
		t.Setenv("AUTH_PROVIDER_KEY", "anon-key")
		err := config.Validate(config.New())
		require.ErrorIs(t, err, apperrors.ErrMissingConfig)
		require.Contains(t, err.Error(), "AUTH_PROVIDER_URL")
	})

	t.Run("missing provider key is a hard failure", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER_URL", "https://auth.example.com")
		t.Setenv("AUTH_PROVIDER_KEY", "")
		err := config.Validate(config.New())
		require.ErrorIs(t, err, apperrors.ErrMissingConfig)
		require.Contains(t, err.Error(), "AUTH_PROVIDER_KEY")
	})

	t.Run("both present", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER_URL", "https://auth.example.com")
		t.Setenv("AUTH_PROVIDER_KEY", "anon-key")
		require.NoError(t, config.Validate(config.New()))
	})
}

func TestDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("STATUS_POLL_INTERVAL", "")
	t.Setenv("AUTH_SCOPES", "")
	c := config.New()

	require.Equal(t, "http://localhost:8000/", c.GetBackendBaseURL())
	require.Equal(t, 3*time.Second, c.GetStatusPollInterval())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, c.GetAuthScopes())
}

func TestNoticeDurationIsClamped(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 5 * time.Second},
		{"1s", 5 * time.Second},
		{"7s", 7 * time.Second},
		{"30s", 10 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("NOTICE_DURATION", tt.value)
			require.Equal(t, tt.want, config.New().GetNoticeDuration())
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "api_base_url: https://api.example.com/\nauth_provider_url: https://auth.example.com\nauth_provider_key: from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("API_BASE_URL", "")
	t.Setenv("AUTH_PROVIDER_URL", "")
	t.Setenv("AUTH_PROVIDER_KEY", "from-env")

	require.NoError(t, config.LoadFile(path))

	c := config.New()
	require.Equal(t, "https://api.example.com/", c.GetBackendBaseURL())
	require.Equal(t, "https://auth.example.com", c.GetAuthProviderURL())
	require.Equal(t, "from-env", c.GetAuthProviderKey(), "environment wins over the file")
}

func TestLoadFileErrors(t *testing.T) {
	require.NoError(t, config.LoadFile(""))
	require.Error(t, config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
