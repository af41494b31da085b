package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const configFileVar = "CONFIG_FILE"

// FileSettings mirrors the environment variables a YAML config file may set.
type FileSettings struct {
	Env                string `yaml:"env"`
	AppName            string `yaml:"app_name"`
	LogLevel           string `yaml:"log_level"`
	DataFolder         string `yaml:"data_folder"`
	MetricsAddr        string `yaml:"metrics_addr"`
	APIBaseURL         string `yaml:"api_base_url"`
	AuthProviderURL    string `yaml:"auth_provider_url"`
	AuthProviderKey    string `yaml:"auth_provider_key"`
	AuthScopes         string `yaml:"auth_scopes"`
	StatusPollInterval string `yaml:"status_poll_interval"`
	NoticeDuration     string `yaml:"notice_duration"`
}

// ConfigFilePath returns the YAML overlay path from CONFIG_FILE, if any.
func ConfigFilePath() string {
	return GetEnv(configFileVar, "")
}

// LoadFile reads a YAML settings file and exports every value whose
// environment variable is not already set. Environment variables win.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("[config LoadFile] read %s: %w", path, err)
	}

	var settings FileSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("[config LoadFile] parse %s: %w", path, err)
	}
	return settings.apply()
}

func (s FileSettings) apply() error {
	values := map[string]string{
		envVar:             s.Env,
		appNameVar:         s.AppName,
		logLevelVar:        s.LogLevel,
		folderEnvVar:       s.DataFolder,
		metricsAddrVar:     s.MetricsAddr,
		apiBaseURLVar:      s.APIBaseURL,
		authProviderURLVar: s.AuthProviderURL,
		authProviderKeyVar: s.AuthProviderKey,
		authScopesVar:      s.AuthScopes,
		pollIntervalVar:    s.StatusPollInterval,
		noticeDurationVar:  s.NoticeDuration,
	}
	for name, value := range values {
		if value == "" || os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("[config LoadFile] set %s: %w", name, err)
		}
	}
	return nil
}
