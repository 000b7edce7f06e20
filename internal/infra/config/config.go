// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Playback  PlaybackConfig `yaml:"playback"`
	Link      LinkConfig     `yaml:"link"`
	Source    SourceConfig   `yaml:"source"`
	Cooldowns map[string]int `yaml:"cooldowns"` // Per-action cooldown seconds
	Messages  MessagesConfig `yaml:"messages"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	DefaultVolume int `yaml:"default_volume" default:"50" validate:"gte=0,lte=200"`
	SearchLimit   int `yaml:"search_limit" default:"10" validate:"gte=1,lte=50"`
}

// LinkConfig represents the playback link backend configuration.
// Settings is decoded per link type.
type LinkConfig struct {
	Type     string         `yaml:"type" default:"timer" validate:"required,oneof=timer mpd"`
	Settings map[string]any `yaml:"settings"`
}

// SourceConfig represents the track source configuration.
type SourceConfig struct {
	Spotify SpotifySourceConfig `yaml:"spotify"`
}

// SpotifySourceConfig represents Spotify API configuration.
type SpotifySourceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	NowPlaying      string `yaml:"now_playing" default:"Now playing: %s"`
	Paused          string `yaml:"paused" default:"⏸ **Paused!**"`
	Resumed         string `yaml:"resumed" default:"▶ **Resumed!**"`
	Skipped         string `yaml:"skipped" default:"⏩ **Skipped!**"`
	Stopped         string `yaml:"stopped" default:"⏹ **Stopped!**"`
	Shuffled        string `yaml:"shuffled" default:"🔀 **Shuffled!**"`
	NothingPlaying  string `yaml:"nothing_playing" default:"There's nothing playing."`
	QueueEmpty      string `yaml:"queue_empty" default:"The queue is empty."`
	DefaultError    string `yaml:"default_error" default:"Something went wrong."`
	FlagEnabled     string `yaml:"flag_enabled" default:"%s **Enabled!**"`
	FlagDisabled    string `yaml:"flag_disabled" default:"%s **Disabled!**"`
	TrackNotFound   string `yaml:"track_not_found" default:"I couldn't find that track."`
	NotConnected    string `yaml:"not_connected" default:"I'm not connected. Run connect first or pass a channel."`
	TracksEnqueued  string `yaml:"tracks_enqueued" default:"**Added** %s **to the queue.**"`
	VolumeSet       string `yaml:"volume_set" default:"🔊 **Volume set to %d%%.**"`
	SeekDone        string `yaml:"seek_done" default:"⏩ **Seek to %s.**"`
	Connected       string `yaml:"connected" default:"🎵 **Connected.**"`
	Disconnected    string `yaml:"disconnected" default:"👋 **Disconnected.**"`
	QueueCleared    string `yaml:"queue_cleared" default:"🗑 **Queue cleared.**"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file input.
func Default() (*Config, error) {
	return Parse([]byte("{}"))
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Source.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Source.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Source.Spotify.RefreshToken = v
	}
	if v := os.Getenv("GROOVEBOX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GROOVEBOX_LINK_TYPE"); v != "" {
		c.Link.Type = v
	}
	if v := os.Getenv("GROOVEBOX_DEFAULT_VOLUME"); v != "" {
		if vol, err := strconv.Atoi(v); err == nil {
			c.Playback.DefaultVolume = vol
		}
	}
}

// CooldownSeconds returns the configured cooldown for an action, or the
// fallback when the action has no entry.
func (c *Config) CooldownSeconds(action string, fallback int) int {
	if v, ok := c.Cooldowns[action]; ok {
		return v
	}
	return fallback
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Source.Spotify.Enabled {
		s := c.Source.Spotify
		if s.ClientID == "" || s.ClientSecret == "" || s.RefreshToken == "" {
			return errors.New("spotify source is enabled but credentials are missing")
		}
	}
	for action, seconds := range c.Cooldowns {
		if seconds < 0 {
			return errors.Newf("cooldown for %q must not be negative", action)
		}
	}
	return nil
}
