package internal

import (
	"fmt"
	"image"
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
	App    ApplicationConfig `yaml:"app"`
	Frames FramesConfig      `yaml:"frames"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Piano  PianoConfig       `yaml:"piano"`
	MIDI   MIDIConfig        `yaml:"midi"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Frames.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Piano.Validate(); err != nil {
		return err
	}
	return c.MIDI.Validate()
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
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
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

// FramesConfig holds the captured frames directory and watcher settings.
type FramesConfig struct {
	Path     string        `yaml:"path"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the frames configuration.
func (c *FramesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
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
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// PianoConfig holds calibration and detection parameters.
type PianoConfig struct {
	TemplatePath     string       `yaml:"template_path"`
	Anchor           AnchorConfig `yaml:"anchor"`
	BaseOctave       int          `yaml:"base_octave"`
	PressThreshold   int          `yaml:"press_threshold"`
	CalibrationFrame string       `yaml:"calibration_frame"`
}

// AnchorConfig is the frame position of the template's top-left corner.
type AnchorConfig struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

func (c AnchorConfig) point() image.Point {
	return image.Pt(c.X, c.Y)
}

// Validate validates the anchor.
func (c AnchorConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.X, validation.Min(0)),
		validation.Field(&c.Y, validation.Min(0)),
	)
}

// Validate validates the piano configuration.
func (c *PianoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TemplatePath, validation.Required),
		validation.Field(&c.Anchor),
		validation.Field(&c.BaseOctave, validation.Min(-1), validation.Max(9)),
		// 765 is the largest possible RGB distance.
		validation.Field(&c.PressThreshold, validation.Required, validation.Min(1), validation.Max(765)),
	)
}

// MIDIConfig holds recording parameters.
// An empty OutputPath disables writing the recording on shutdown.
type MIDIConfig struct {
	OutputPath string  `yaml:"output_path"`
	Channel    int     `yaml:"channel"`
	Velocity   int     `yaml:"velocity"`
	Tempo      float64 `yaml:"tempo"`
}

// Validate validates the MIDI configuration.
func (c *MIDIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Channel, validation.Min(0), validation.Max(15)),
		validation.Field(&c.Velocity, validation.Required, validation.Min(1), validation.Max(127)),
		validation.Field(&c.Tempo, validation.Required, validation.Min(1.0)),
	)
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
		Frames: FramesConfig{
			Path:     "./frames",
			Debounce: 100 * time.Millisecond,
		},
		SQLite: SQLiteConfig{
			Path: "./keyscan.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Piano: PianoConfig{
			TemplatePath:   "./template.png",
			BaseOctave:     4,
			PressThreshold: 100,
		},
		MIDI: MIDIConfig{
			Channel:  0,
			Velocity: 100,
			Tempo:    120,
		},
	}
}
