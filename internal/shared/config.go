package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials Credentials      `toml:"credentials"`
	Pipeline    PipelineSettings `toml:"pipeline"`
	Browser     BrowserConfig    `toml:"browser"`
	Database    DatabaseConfig   `toml:"database"`
	Export      ExportConfig     `toml:"export"`
	Logging     LoggingConfig    `toml:"logging"`
}

// Credentials holds the opaque tokens for every external service.
//
// The same keys are used by the flat secret.toml layout, so either file decodes into this struct.
type Credentials struct {
	GeniusToken         string `toml:"genius_token"`
	SpotifyClientID     string `toml:"spotify_client_id"`
	SpotifyClientSecret string `toml:"spotify_client_secret"`
	YouTubeAPIKey       string `toml:"youtube_api_key"`
	StatsAPIKey         string `toml:"stats_api_key"`
}

// PipelineSettings tunes the aggregation run.
type PipelineSettings struct {
	MaxConcurrency  int `toml:"max_concurrency"`
	ItemLimit       int `toml:"item_limit"`
	StatsIntervalMS int `toml:"stats_interval_ms"`
	PageDelayMS     int `toml:"page_delay_ms"`
	RequestTimeoutS int `toml:"request_timeout_s"`
}

// BrowserConfig controls the headless browser used by the page-scrape fallback.
type BrowserConfig struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path"`
	GracePeriodMS  int    `toml:"grace_period_ms"`
	RenderTimeoutS int    `toml:"render_timeout_s"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ExportConfig contains output settings for finished runs.
type ExportConfig struct {
	OutputDir   string            `toml:"output_dir"`
	BaseName    string            `toml:"base_name"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
}

// ObjectStoreConfig describes an S3-compatible bucket that receives finished exports.
type ObjectStoreConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

// LoggingConfig selects the log level and an optional log file.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// credentialEnv maps environment variables onto credential fields.
var credentialEnv = []struct {
	key   string
	field func(*Credentials) *string
}{
	{"PTRACK_GENIUS_TOKEN", func(c *Credentials) *string { return &c.GeniusToken }},
	{"PTRACK_SPOTIFY_CLIENT_ID", func(c *Credentials) *string { return &c.SpotifyClientID }},
	{"PTRACK_SPOTIFY_CLIENT_SECRET", func(c *Credentials) *string { return &c.SpotifyClientSecret }},
	{"PTRACK_YOUTUBE_API_KEY", func(c *Credentials) *string { return &c.YouTubeAPIKey }},
	{"PTRACK_STATS_API_KEY", func(c *Credentials) *string { return &c.StatsAPIKey }},
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadSecrets reads a flat secret.toml file and merges every non-empty key over the current credentials.
func (c *Config) LoadSecrets(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}

	var secrets Credentials
	if err := toml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("%w: failed to parse secrets: %v", ErrInvalidConfig, err)
	}

	c.Credentials.merge(secrets)
	return nil
}

// LoadEnv overlays PTRACK_* credentials: non-empty process variables win, then the optional dotenv file.
//
// A missing dotenv file is not an error. The process environment is never modified.
func (c *Config) LoadEnv(dotenv string) error {
	file := map[string]string{}
	if dotenv != "" {
		if _, err := os.Stat(dotenv); err == nil {
			if file, err = godotenv.Read(dotenv); err != nil {
				return fmt.Errorf("failed to load %s: %w", dotenv, err)
			}
		}
	}

	for _, e := range credentialEnv {
		v := strings.TrimSpace(os.Getenv(e.key))
		if v == "" {
			v = strings.TrimSpace(file[e.key])
		}
		if v != "" {
			*e.field(&c.Credentials) = v
		}
	}
	return nil
}

func (c *Credentials) merge(other Credentials) {
	for _, e := range credentialEnv {
		if v := *e.field(&other); v != "" {
			*e.field(c) = v
		}
	}
}

// Validate checks that every credential is present. Format is not checked.
func (c Credentials) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"genius_token", c.GeniusToken},
		{"spotify_client_id", c.SpotifyClientID},
		{"spotify_client_secret", c.SpotifyClientSecret},
		{"youtube_api_key", c.YouTubeAPIKey},
		{"stats_api_key", c.StatsAPIKey},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// StatsInterval is the minimum spacing between stream statistics calls.
func (p PipelineSettings) StatsInterval() time.Duration {
	return millis(p.StatsIntervalMS, 1500)
}

// PageDelay is the pause between catalog page requests.
func (p PipelineSettings) PageDelay() time.Duration {
	return millis(p.PageDelayMS, 500)
}

// RequestTimeout bounds every outbound HTTP request.
func (p PipelineSettings) RequestTimeout() time.Duration {
	if p.RequestTimeoutS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.RequestTimeoutS) * time.Second
}

// GracePeriod is how long a browser process gets between SIGTERM and SIGKILL.
func (b BrowserConfig) GracePeriod() time.Duration {
	return millis(b.GracePeriodMS, 2000)
}

// RenderTimeout bounds a single page render.
func (b BrowserConfig) RenderTimeout() time.Duration {
	if b.RenderTimeoutS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(b.RenderTimeoutS) * time.Second
}

func millis(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Millisecond
}
