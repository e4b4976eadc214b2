package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/multicare-dataset/website/internal/casehub"
	"github.com/multicare-dataset/website/internal/dataset"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Dataset DatasetConfig     `yaml:"dataset"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Search  SearchConfig      `yaml:"search"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Dataset.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Search.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// EventThrottle is the minimum gap between selection.invalidated events.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
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

// DatasetConfig locates the dataset tables and images.
//
// MinYear and MaxYear limit which year-partitioned case files are imported;
// zero leaves the bound open. Watch reloads the store when files change.
type DatasetConfig struct {
	Path      string `yaml:"path"`
	ImagePath string `yaml:"image_path"`
	Watch     bool   `yaml:"watch"`
	MinYear   int    `yaml:"min_year"`
	MaxYear   int    `yaml:"max_year"`
}

// Validate validates the dataset configuration.
func (c *DatasetConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MinYear, validation.Min(0)),
		validation.Field(&c.MaxYear, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.MinYear > 0 && c.MaxYear > 0 && c.MinYear > c.MaxYear {
		return fmt.Errorf("dataset: min_year %d exceeds max_year %d", c.MinYear, c.MaxYear)
	}
	return nil
}

// Years returns the partition range to import.
func (c *DatasetConfig) Years() dataset.YearRange {
	return dataset.YearRange{Min: c.MinYear, Max: c.MaxYear}
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

// SearchConfig holds result paging and selection cache settings.
type SearchConfig struct {
	PageSize    int `yaml:"page_size"`
	MaxPageSize int `yaml:"max_page_size"`
	CacheSize   int `yaml:"cache_size"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPageSize, validation.Required, validation.Min(1)),
		validation.Field(&c.CacheSize, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.PageSize > c.MaxPageSize {
		return fmt.Errorf("search: page_size %d exceeds max_page_size %d", c.PageSize, c.MaxPageSize)
	}
	return nil
}

// Options converts the settings for casehub.NewService.
func (c *SearchConfig) Options() casehub.Options {
	return casehub.Options{
		CacheSize:   c.CacheSize,
		PageSize:    c.PageSize,
		MaxPageSize: c.MaxPageSize,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			EventThrottle: 2 * time.Second,
		},
		Dataset: DatasetConfig{
			Path:  "./data",
			Watch: true,
		},
		SQLite: SQLiteConfig{
			Path: "./casehub.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Search: SearchConfig{
			PageSize:    casehub.DefaultPageSize,
			MaxPageSize: casehub.DefaultMaxPageSize,
			CacheSize:   casehub.DefaultCacheSize,
		},
	}
}
