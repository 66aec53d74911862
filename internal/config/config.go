package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL     = "https://api.astronomyapi.com"
	DefaultTokenTTL       = time.Hour
	DefaultRequestTimeout = 30 * time.Second
	DefaultListen         = "127.0.0.1:8080"
)

// Authentication modes for the astronomy API.
const (
	AuthModeNone   = "none"
	AuthModeAPIKey = "apikey"
	AuthModeToken  = "token"
)

// Duration is a time.Duration that reads as "90s" or "1h" from JSON
// and YAML config files.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds the configuration for astrocal.
type Config struct {
	APIBaseURL     string   `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
	AuthMode       string   `json:"auth_mode,omitempty" yaml:"auth_mode,omitempty"` // "none", "apikey" or "token"
	APIKey         string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	AppID          string   `json:"app_id,omitempty" yaml:"app_id,omitempty"`
	AppSecret      string   `json:"app_secret,omitempty" yaml:"app_secret,omitempty"`
	TokenTTL       Duration `json:"token_ttl,omitempty" yaml:"token_ttl,omitempty"`
	RequestTimeout Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	TokenCache     string   `json:"token_cache,omitempty" yaml:"token_cache,omitempty"` // file keeping the bearer token between runs

	// Web front end
	Listen   string `json:"listen,omitempty" yaml:"listen,omitempty"`
	AuthFile string `json:"auth_file,omitempty" yaml:"auth_file,omitempty"` // user:argon2id-hash line guarding navigation

	// Optional second event source
	GoogleCalendarID string `json:"google_calendar_id,omitempty" yaml:"google_calendar_id,omitempty"`
	GoogleAPIKey     string `json:"google_api_key,omitempty" yaml:"google_api_key,omitempty"`
}

// Overrides carries command-line flag values. Empty strings leave the
// lower-precedence value in place.
type Overrides struct {
	APIBaseURL       string
	AuthMode         string
	APIKey           string
	AppID            string
	AppSecret        string
	TokenCache       string
	Listen           string
	AuthFile         string
	GoogleCalendarID string
	GoogleAPIKey     string
}

// LoadConfigFromFile loads configuration from a JSON or YAML file,
// chosen by extension.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if the resulting configuration is inconsistent.
func LoadConfig(configFile string, flags Overrides) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	for env, field := range map[string]*string{
		"ASTRO_API_BASE_URL": &config.APIBaseURL,
		"ASTRO_AUTH_MODE":    &config.AuthMode,
		"ASTRO_API_KEY":      &config.APIKey,
		"ASTRO_APP_ID":       &config.AppID,
		"ASTRO_APP_SECRET":   &config.AppSecret,
		"ASTRO_TOKEN_CACHE":  &config.TokenCache,
		"ASTRO_LISTEN":       &config.Listen,
		"ASTRO_AUTH_FILE":    &config.AuthFile,
		"GOOGLE_CALENDAR_ID": &config.GoogleCalendarID,
		"GOOGLE_API_KEY":     &config.GoogleAPIKey,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
	if v := os.Getenv("ASTRO_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ASTRO_TOKEN_TTL value: %w", err)
		}
		config.TokenTTL = Duration(d)
	}
	if v := os.Getenv("ASTRO_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ASTRO_REQUEST_TIMEOUT value: %w", err)
		}
		config.RequestTimeout = Duration(d)
	}

	// Step 3: Override with command-line flags (highest priority)
	overrideString(&config.APIBaseURL, flags.APIBaseURL)
	overrideString(&config.AuthMode, flags.AuthMode)
	overrideString(&config.APIKey, flags.APIKey)
	overrideString(&config.AppID, flags.AppID)
	overrideString(&config.AppSecret, flags.AppSecret)
	overrideString(&config.TokenCache, flags.TokenCache)
	overrideString(&config.Listen, flags.Listen)
	overrideString(&config.AuthFile, flags.AuthFile)
	overrideString(&config.GoogleCalendarID, flags.GoogleCalendarID)
	overrideString(&config.GoogleAPIKey, flags.GoogleAPIKey)

	// Step 4: Apply defaults and validate
	if config.APIBaseURL == "" {
		config.APIBaseURL = DefaultAPIBaseURL
	}
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = Duration(DefaultTokenTTL)
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if config.TokenTTL < 0 {
		return nil, fmt.Errorf("token_ttl must be positive, got %s", time.Duration(config.TokenTTL))
	}
	if config.RequestTimeout < 0 {
		return nil, fmt.Errorf("request_timeout must be positive, got %s", time.Duration(config.RequestTimeout))
	}

	config.AuthMode = strings.ToLower(config.AuthMode)
	if config.AuthMode == "" {
		config.AuthMode = inferAuthMode(&config)
	}
	switch config.AuthMode {
	case AuthModeNone:
	case AuthModeAPIKey:
		if config.APIKey == "" {
			return nil, fmt.Errorf("api_key must be provided via --api-key flag, ASTRO_API_KEY environment variable, or config file when auth_mode is 'apikey'")
		}
	case AuthModeToken:
		if config.AppID == "" || config.AppSecret == "" {
			return nil, fmt.Errorf("app_id and app_secret must be provided via flags, ASTRO_APP_ID/ASTRO_APP_SECRET environment variables, or config file when auth_mode is 'token'")
		}
	default:
		return nil, fmt.Errorf("auth_mode must be 'none', 'apikey' or 'token', got '%s'", config.AuthMode)
	}

	if (config.GoogleCalendarID == "") != (config.GoogleAPIKey == "") {
		return nil, fmt.Errorf("google_calendar_id and google_api_key must be provided together")
	}

	return &config, nil
}

// GoogleEnabled reports whether the Google Calendar source is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleCalendarID != "" && c.GoogleAPIKey != ""
}

func inferAuthMode(config *Config) string {
	switch {
	case config.AppID != "" && config.AppSecret != "":
		return AuthModeToken
	case config.APIKey != "":
		return AuthModeAPIKey
	default:
		return AuthModeNone
	}
}

func overrideString(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}
