package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Library LibraryConfig     `yaml:"library"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Engine  EngineConfig      `yaml:"engine"`
	Outputs OutputsConfig     `yaml:"outputs"`
	Filters FiltersConfig     `yaml:"filters"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	return c.Outputs.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LibraryConfig holds the path to the show library directory.
type LibraryConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite catalog configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// EngineConfig holds playback engine tuning.
type EngineConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
	FadeEnd      string        `yaml:"fade_end"`
	SeekTriggers string        `yaml:"seek_triggers"`
	SeekMode     string        `yaml:"seek_mode"`
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FadeEnd, validation.In("revert", "hold")),
		validation.Field(&c.SeekTriggers, validation.In("suppress", "replay")),
		validation.Field(&c.SeekMode, validation.In("clamp", "error")),
	)
}

// OutputsConfig enables and addresses the protocol adapters. A disabled
// adapter is simply not constructed; tracks for its protocol are dropped
// with a debug log.
type OutputsConfig struct {
	ArtNet ArtNetConfig `yaml:"artnet"`
	MIDI   MIDIConfig   `yaml:"midi"`
	OSC    OSCConfig    `yaml:"osc"`
}

// Validate validates the outputs configuration.
func (c *OutputsConfig) Validate() error {
	return c.ArtNet.Validate()
}

// ArtNetConfig holds the Art-Net DMX output configuration.
type ArtNetConfig struct {
	Enabled bool   `yaml:"enabled"`
	Target  string `yaml:"target"`

	// RefreshInterval resends the last frame of every universe so
	// receivers that time out idle sources hold their levels. Zero
	// disables the refresh.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Validate validates the Art-Net configuration.
func (c *ArtNetConfig) Validate() error {
	if c.Enabled && c.Target == "" {
		return fmt.Errorf("outputs: artnet enabled but target is empty")
	}
	return nil
}

// MIDIConfig holds the MIDI output configuration.
type MIDIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// OSCConfig holds the OSC output configuration.
type OSCConfig struct {
	Enabled bool `yaml:"enabled"`
}

// FiltersConfig points at the DMX filter configuration file. The file is
// optional; when present it is watched and hot reloaded.
type FiltersConfig struct {
	Path string `yaml:"path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Library: LibraryConfig{
			Path: "./shows",
		},
		SQLite: SQLiteConfig{
			Path: "./cueflow.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Engine: EngineConfig{
			TickInterval: 25 * time.Millisecond,
			SendTimeout:  250 * time.Millisecond,
			FadeEnd:      "revert",
			SeekTriggers: "suppress",
			SeekMode:     "clamp",
		},
		Outputs: OutputsConfig{
			ArtNet: ArtNetConfig{
				Enabled:         true,
				Target:          "255.255.255.255:6454",
				RefreshInterval: time.Second,
			},
		},
	}
}
