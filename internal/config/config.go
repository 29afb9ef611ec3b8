// Package config holds the validated settings every pipeline component
// receives. Settings are loaded once at startup from a YAML file plus
// LOGHOOK_* environment variables; validation runs before any component
// touches the network.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// MissingSettingsError lists every required key absent from the loaded
// configuration. It maps to a 400 on the trigger surface.
type MissingSettingsError struct {
	Missing []string
}

func (e *MissingSettingsError) Error() string {
	return fmt.Sprintf("missing required settings: %s", strings.Join(e.Missing, ", "))
}

// WebhookAuth are the optional client credentials for the webhook bearer
// token. Empty ClientID disables webhook auth entirely.
type WebhookAuth struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Audience     string `mapstructure:"audience"`
	TokenURL     string `mapstructure:"token_url"`
}

func (a WebhookAuth) Enabled() bool {
	return a.ClientID != ""
}

type Webhook struct {
	URL         string      `mapstructure:"url"`
	Concurrency int         `mapstructure:"concurrency"`
	Auth        WebhookAuth `mapstructure:"auth"`
}

type CheckpointConfig struct {
	Backend       string `mapstructure:"backend"`
	Name          string `mapstructure:"name"`
	RedisAddress  string `mapstructure:"redis_address"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	BoltPath      string `mapstructure:"bolt_path"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type Settings struct {
	Domain       string `mapstructure:"domain"`
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// Endpoints is the comma-separated allow-list of /api/v2 resources;
	// empty disables endpoint filtering.
	Endpoints string `mapstructure:"endpoints"`
	BatchSize int    `mapstructure:"batch_size"`

	Webhook    Webhook          `mapstructure:"webhook"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

// SourceBaseURL is the scheme-qualified root of the management API.
func (s *Settings) SourceBaseURL() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return "https://" + s.Domain
}

// SourceTokenURL is the token endpoint used for the logs bearer token.
func (s *Settings) SourceTokenURL() string {
	return s.SourceBaseURL() + "/oauth/token"
}

// SourceAudience identifies the management API when requesting its token.
func (s *Settings) SourceAudience() string {
	return s.SourceBaseURL() + "/api/v2/"
}

// WebhookTokenURL is the token endpoint for the webhook bearer token,
// defaulting to the source tenant's endpoint when not set explicitly.
func (s *Settings) WebhookTokenURL() string {
	if s.Webhook.Auth.TokenURL != "" {
		return s.Webhook.Auth.TokenURL
	}
	return s.SourceTokenURL()
}

// Validate reports every missing required setting at once.
func (s *Settings) Validate() error {
	var missing []string
	if s.Domain == "" && s.BaseURL == "" {
		missing = append(missing, "domain")
	}
	if s.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if s.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if s.Webhook.URL == "" {
		missing = append(missing, "webhook.url")
	}
	if len(missing) > 0 {
		return &MissingSettingsError{Missing: missing}
	}
	return nil
}

// Load reads settings from the given file (optional) and the environment,
// applies defaults, and validates.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("batch_size", 100)
	v.SetDefault("webhook.concurrency", 5)
	v.SetDefault("checkpoint.backend", "bolt")
	v.SetDefault("checkpoint.name", "default")
	v.SetDefault("checkpoint.bolt_path", "loghook.db")
	v.SetDefault("http.addr", ":8080")

	v.SetEnvPrefix("LOGHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces keys viper already knows about; bind every
	// settings key so an env-only deployment resolves without a config file.
	for _, key := range []string{
		"domain", "base_url", "client_id", "client_secret", "endpoints",
		"batch_size",
		"webhook.url", "webhook.concurrency",
		"webhook.auth.client_id", "webhook.auth.client_secret",
		"webhook.auth.audience", "webhook.auth.token_url",
		"checkpoint.backend", "checkpoint.name",
		"checkpoint.redis_address", "checkpoint.redis_password",
		"checkpoint.redis_db", "checkpoint.bolt_path",
		"http.addr",
	} {
		v.BindEnv(key)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}
