package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the installed location of the YAML config; the
// provisioning server edits the same file.
const DefaultPath = "/opt/inkycal/config.yaml"

// DefaultEnvPath is where provisioning writes credential variables.
const DefaultEnvPath = "/opt/inkycal/.env"

// SleepConfig controls the overnight do-not-refresh window.
type SleepConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Start      string `yaml:"start" json:"start"`
	End        string `yaml:"end" json:"end"`
	BannerText string `yaml:"banner_text" json:"banner_text"`
}

// DeepCleanConfig schedules the periodic ghost-clearing refresh. Schedule
// is a standard 5-field cron expression evaluated against the current
// invocation; the process itself is still driven by an external timer.
type DeepCleanConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule"`
}

// DisplayConfig describes the attached Inky panel.
type DisplayConfig struct {
	Width         int     `yaml:"width" json:"width"`
	Height        int     `yaml:"height" json:"height"`
	RotateDegrees int     `yaml:"rotate_degrees" json:"rotate_degrees"`
	Saturation    float64 `yaml:"saturation" json:"saturation"`
	Border        string  `yaml:"border" json:"border"`
}

// GoogleConfig selects Google Calendar sources.
type GoogleConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	CalendarIDs []string `yaml:"calendar_ids" json:"calendar_ids"`
}

// ICloudConfig selects iCloud CalDAV calendars by display name; an empty
// allowlist takes every calendar.
type ICloudConfig struct {
	Enabled               bool     `yaml:"enabled" json:"enabled"`
	CalendarNameAllowlist []string `yaml:"calendar_name_allowlist" json:"calendar_name_allowlist"`
}

// CalendarsConfig groups the provider sections.
type CalendarsConfig struct {
	Google GoogleConfig `yaml:"google" json:"google"`
	ICloud ICloudConfig `yaml:"icloud" json:"icloud"`
}

// TravelConfig controls the travel-time annotator.
type TravelConfig struct {
	Enabled                 bool   `yaml:"enabled" json:"enabled"`
	OriginAddress           string `yaml:"origin_address" json:"origin_address"`
	BackToBackWindowMinutes int    `yaml:"back_to_back_window_minutes" json:"back_to_back_window_minutes"`
}

// WeatherConfig controls the weather annotator and alert lookups.
type WeatherConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	Latitude          float64 `yaml:"latitude" json:"latitude"`
	Longitude         float64 `yaml:"longitude" json:"longitude"`
	IncludeEndWeather bool    `yaml:"include_end_weather" json:"include_end_weather"`
}

// BasicAuthConfig guards the provisioning HTTP endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Timezone            string           `yaml:"timezone" json:"timezone"`
	PollIntervalMinutes int              `yaml:"poll_interval_minutes" json:"poll_interval_minutes"`
	Listen              string           `yaml:"listen" json:"listen"`
	LogLevel            string           `yaml:"log_level" json:"log_level"`
	Sleep               SleepConfig      `yaml:"sleep" json:"sleep"`
	DeepClean           DeepCleanConfig  `yaml:"deep_clean" json:"deep_clean"`
	Display             DisplayConfig    `yaml:"display" json:"display"`
	Calendars           CalendarsConfig  `yaml:"calendars" json:"calendars"`
	Travel              TravelConfig     `yaml:"travel" json:"travel"`
	Weather             WeatherConfig    `yaml:"weather" json:"weather"`
	BasicAuth           *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns the in-memory defaults.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills missing/zero values with defaults so partially-filled
// configs behave correctly. Every default lives here and nowhere else.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = "America/Phoenix"
	}
	if c.PollIntervalMinutes <= 0 {
		c.PollIntervalMinutes = 15
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = "info"
	}

	if c.Sleep.Start == "" {
		c.Sleep.Start = "22:30"
	}
	if c.Sleep.End == "" {
		c.Sleep.End = "06:30"
	}
	if c.Sleep.BannerText == "" {
		c.Sleep.BannerText = "Sleeping"
	}

	if c.DeepClean.Schedule == "" {
		// Sunday 03:30, matching the deep-clean timer the installer ships.
		c.DeepClean.Schedule = "30 3 * * 0"
	}

	if c.Display.Width <= 0 {
		c.Display.Width = 1200
	}
	if c.Display.Height <= 0 {
		c.Display.Height = 1600
	}
	if c.Display.Border == "" {
		c.Display.Border = "white"
	}

	if c.Calendars.Google.CalendarIDs == nil {
		c.Calendars.Google.CalendarIDs = []string{"primary"}
	}
	if c.Calendars.ICloud.CalendarNameAllowlist == nil {
		c.Calendars.ICloud.CalendarNameAllowlist = []string{}
	}

	if c.Travel.BackToBackWindowMinutes <= 0 {
		c.Travel.BackToBackWindowMinutes = 30
	}

	if c.Weather.Latitude == 0 && c.Weather.Longitude == 0 {
		// Goodyear, AZ.
		c.Weather.Latitude = 33.4353
		c.Weather.Longitude = -112.3582
	}
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// Load reads configuration from the given YAML path. The file must exist;
// a missing or unparsable config aborts the run rather than silently
// rendering with defaults pointed at nobody's calendars.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the configuration atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".inkycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Secrets are credentials taken from the process environment, optionally
// seeded from the provisioning .env file. They never live in the YAML
// config.
type Secrets struct {
	ICloudUsername    string `envconfig:"ICLOUD_USERNAME"`
	ICloudAppPassword string `envconfig:"ICLOUD_APP_PASSWORD"`
	// GoogleCredentialsJSON / GoogleTokenJSON are file paths, not inline
	// secrets.
	GoogleCredentialsJSON string `envconfig:"GOOGLE_CREDENTIALS_JSON"`
	GoogleTokenJSON       string `envconfig:"GOOGLE_TOKEN_JSON"`
}

// LoadSecrets loads the .env file (best effort; absence is fine) and then
// reads the secret variables from the environment.
func LoadSecrets(envPath string) (Secrets, error) {
	if envPath != "" {
		// Already-set process environment wins over the file.
		_ = godotenv.Load(envPath)
	}

	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return Secrets{}, fmt.Errorf("config: secrets: %w", err)
	}
	return s, nil
}
