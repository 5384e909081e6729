package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Jellyfin    JellyfinConfig    `toml:"jellyfin"`
	Suggestions SuggestionsConfig `toml:"suggestions"`
	Credentials CredentialsConfig `toml:"credentials"`
	Acquisition AcquisitionConfig `toml:"acquisition"`
	Scan        ScanConfig        `toml:"scan"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// JellyfinConfig holds the media server connection and session settings.
type JellyfinConfig struct {
	URL             string   `toml:"url" validate:"required,url"`
	Username        string   `toml:"username" validate:"required"`
	Password        string   `toml:"password"`
	Client          string   `toml:"client"`
	Device          string   `toml:"device"`
	DeviceID        string   `toml:"device_id"`
	CollectionID    string   `toml:"collection_id"`
	SearchLimit     int      `toml:"search_limit" validate:"gte=1,lte=200"`
	SessionLifetime Duration `toml:"session_lifetime"`
	SessionMargin   Duration `toml:"session_margin"`
}

// SuggestionsConfig selects and configures the suggestion source.
type SuggestionsConfig struct {
	Provider    string   `toml:"provider" validate:"oneof=llm spotify"`
	Endpoint    string   `toml:"endpoint" validate:"omitempty,url"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	Temperature float64  `toml:"temperature" validate:"gte=0,lte=2"`
	Timeout     Duration `toml:"timeout"`
}

// CredentialsConfig contains third-party service credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API app credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// AcquisitionConfig configures the external download tool.
type AcquisitionConfig struct {
	Command     string   `toml:"command"`
	TargetDir   string   `toml:"target_dir"`
	AudioFormat string   `toml:"audio_format"`
	Timeout     Duration `toml:"timeout"`
	BatchSize   int      `toml:"batch_size" validate:"gte=0,lte=32"`
}

// ScanConfig bounds the library re-index wait.
type ScanConfig struct {
	Timeout          Duration `toml:"timeout"`
	PollInterval     Duration `toml:"poll_interval"`
	ProgressInterval Duration `toml:"progress_interval"`
}

// PipelineConfig contains orchestrator defaults.
type PipelineConfig struct {
	DefaultCount      int     `toml:"default_count" validate:"gte=0,lte=200"`
	DefaultMode       string  `toml:"default_mode"`
	PlaylistName      string  `toml:"playlist_name"`
	PreserveOrder     bool    `toml:"preserve_order"`
	SearchConcurrency int     `toml:"search_concurrency" validate:"gte=0"`
	RateLimit         float64 `toml:"rate_limit" validate:"gte=0"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
}

// Duration wraps [time.Duration] so TOML files can use strings like "3s" or "23h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys absent from the file keep the values of [DefaultConfig], and secrets may be supplied through
// CURATE_JELLYFIN_PASSWORD, CURATE_LLM_API_KEY and CURATE_SPOTIFY_CLIENT_SECRET.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyEnv()

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

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks struct constraints and returns an error wrapping [ErrInvalidConfig].
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Suggestions.Provider == "llm" && c.Suggestions.Endpoint == "" {
		return fmt.Errorf("%w: suggestions.endpoint is required for the llm provider", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CURATE_JELLYFIN_PASSWORD"); v != "" {
		c.Jellyfin.Password = v
	}
	if v := os.Getenv("CURATE_LLM_API_KEY"); v != "" {
		c.Suggestions.APIKey = v
	}
	if v := os.Getenv("CURATE_SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
