package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds every tunable for the Falcon backend. Values come from
// FALCON_* environment variables, an optional falcon.yaml, and the defaults
// below, in that order of precedence.
type Settings struct {
	AppName    string `mapstructure:"app_name"`
	AppVersion string `mapstructure:"app_version"`
	Debug      bool   `mapstructure:"debug"`

	HTTPAddr string `mapstructure:"http_addr"`

	// Storage
	DatabasePath     string `mapstructure:"database_path"`
	RepoDatabasePath string `mapstructure:"repo_database_path"`
	WikiStorageRoot  string `mapstructure:"wiki_storage_root"`

	// Codex CLI
	CodexAPIKey         string `mapstructure:"codex_api_key"`
	CodexTimeoutSeconds int    `mapstructure:"codex_timeout_seconds"`
	CodexMaxConcurrent  int    `mapstructure:"codex_max_concurrent"`

	// Job queue
	MaxConcurrentJobs      int     `mapstructure:"max_concurrent_jobs"`
	JobMaxAttempts         int     `mapstructure:"job_max_attempts"`
	JobPollIntervalSeconds float64 `mapstructure:"job_poll_interval_seconds"`

	// Sandbox
	UseDaytona    bool   `mapstructure:"use_daytona"`
	DaytonaAPIKey string `mapstructure:"daytona_api_key"`
	DaytonaAPIURL string `mapstructure:"daytona_api_url"`

	// GitHub
	GitHubAPIToken string `mapstructure:"github_api_token"`

	// Chat model
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`

	// Ingestion
	MaxFileSize int64 `mapstructure:"max_file_size"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// CodexTimeout returns the agent invocation deadline as a duration.
func (s *Settings) CodexTimeout() time.Duration {
	return time.Duration(s.CodexTimeoutSeconds) * time.Second
}

// JobPollInterval returns the orchestrator poll period as a duration.
func (s *Settings) JobPollInterval() time.Duration {
	return time.Duration(s.JobPollIntervalSeconds * float64(time.Second))
}

// Load reads settings from the environment (FALCON_ prefix) and an optional
// config file. An empty path searches for falcon.yaml in the working
// directory; a missing file is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("app_name", "Falcon")
	v.SetDefault("app_version", "0.1.0")
	v.SetDefault("debug", false)
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("database_path", "falcon.db")
	v.SetDefault("repo_database_path", "repos.db")
	v.SetDefault("wiki_storage_root", "wiki_storage")
	v.SetDefault("codex_api_key", "")
	v.SetDefault("codex_timeout_seconds", 300)
	v.SetDefault("codex_max_concurrent", 3)
	v.SetDefault("max_concurrent_jobs", 2)
	v.SetDefault("job_max_attempts", 3)
	v.SetDefault("job_poll_interval_seconds", 1.0)
	v.SetDefault("use_daytona", false)
	v.SetDefault("daytona_api_key", "")
	v.SetDefault("daytona_api_url", "https://app.daytona.io/api")
	v.SetDefault("github_api_token", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o")
	v.SetDefault("max_file_size", 500*1024)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetEnvPrefix("FALCON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("falcon")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &s, nil
}
