package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"campusbook/internal/api"
	"campusbook/internal/models"
	"campusbook/internal/quota"
	"campusbook/internal/realtime"
	"campusbook/internal/slots"
)

// EnvPath names the variable overriding the config file location.
const EnvPath = "CAMPUSBOOK_CONFIG"

const defaultPath = "configs/config.yaml"

type Config struct {
	Timezone string `yaml:"timezone"`

	API struct {
		BaseURL          string   `yaml:"base_url"`
		TimeoutSeconds   int      `yaml:"timeout_seconds"`
		RateLimit        float64  `yaml:"rate_limit"`
		Burst            int      `yaml:"burst"`
		CacheTTLSeconds  int      `yaml:"cache_ttl_seconds"`
		ConflictKeywords []string `yaml:"conflict_keywords"`
	} `yaml:"api"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Realtime struct {
		Enabled bool   `yaml:"enabled"`
		Channel string `yaml:"channel"`
	} `yaml:"realtime"`

	Slots struct {
		Start       string `yaml:"start"`
		End         string `yaml:"end"`
		StepMinutes int    `yaml:"step_minutes"`
	} `yaml:"slots"`

	Booking struct {
		QuotaCeiling        int    `yaml:"quota_ceiling"`
		LegacyNumericGuests *bool  `yaml:"legacy_numeric_guests"`
		ReturnPath          string `yaml:"return_path"`
	} `yaml:"booking"`

	Waitlist struct {
		AutoPromote bool `yaml:"auto_promote"`
	} `yaml:"waitlist"`

	Notifications struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	} `yaml:"notifications"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	DevBackend struct {
		Listen       string `yaml:"listen"`
		DatabasePath string `yaml:"database_path"`
		Seed         bool   `yaml:"seed"`

		Backup struct {
			Enabled       bool   `yaml:"enabled"`
			IntervalHours int    `yaml:"interval_hours"`
			Path          string `yaml:"path"`
			RetentionDays int    `yaml:"retention_days"`
		} `yaml:"backup"`

		Reminders struct {
			Enabled         bool `yaml:"enabled"`
			LeadMinutes     int  `yaml:"lead_minutes"`
			IntervalSeconds int  `yaml:"interval_seconds"`
		} `yaml:"reminders"`
	} `yaml:"dev_backend"`
}

// Path resolves the config location: explicit path, then $CAMPUSBOOK_CONFIG,
// then configs/config.yaml.
func Path(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return defaultPath
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(Path(path))
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8080"
	}
	if cfg.DevBackend.DatabasePath == "" {
		cfg.DevBackend.DatabasePath = "data/campusbook.db"
	}

	return &cfg, nil
}

// Location is the campus time zone used for "now" comparisons.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) APIConfig() api.Config {
	keywords := c.API.ConflictKeywords
	if len(keywords) == 0 {
		keywords = api.DefaultConflictKeywords
	}
	timeout := 10 * time.Second
	if c.API.TimeoutSeconds > 0 {
		timeout = time.Duration(c.API.TimeoutSeconds) * time.Second
	}
	return api.Config{
		BaseURL:          c.API.BaseURL,
		Timeout:          timeout,
		RateLimit:        c.API.RateLimit,
		Burst:            c.API.Burst,
		ConflictKeywords: keywords,
	}
}

func (c *Config) CacheTTL() time.Duration {
	if c.API.CacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.API.CacheTTLSeconds) * time.Second
}

func (c *Config) RealtimeChannel() string {
	if c.Realtime.Channel == "" {
		return realtime.DefaultChannel
	}
	return c.Realtime.Channel
}

// SlotGrid returns the configured grid, or the default one if any field is
// missing or malformed.
func (c *Config) SlotGrid() slots.Grid {
	def := slots.DefaultGrid()
	if c.Slots.Start == "" && c.Slots.End == "" && c.Slots.StepMinutes == 0 {
		return def
	}

	start, err := models.ParseClock(c.Slots.Start)
	if err != nil {
		return def
	}
	end, err := models.ParseClock(c.Slots.End)
	if err != nil {
		return def
	}
	g := slots.Grid{Start: start, End: end, Step: time.Duration(c.Slots.StepMinutes) * time.Minute}
	if g.Validate() != nil {
		return def
	}
	return g
}

func (c *Config) QuotaCeiling() int {
	if c.Booking.QuotaCeiling <= 0 {
		return quota.DefaultCeiling
	}
	return c.Booking.QuotaCeiling
}

// LegacyNumericGuests defaults to true.
func (c *Config) LegacyNumericGuests() bool {
	if c.Booking.LegacyNumericGuests == nil {
		return true
	}
	return *c.Booking.LegacyNumericGuests
}

func (c *Config) ReturnPath() string {
	if c.Booking.ReturnPath == "" {
		return "/my-reservations"
	}
	return c.Booking.ReturnPath
}

func (c *Config) NotificationPollInterval() time.Duration {
	if c.Notifications.PollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Notifications.PollIntervalSeconds) * time.Second
}

func (c *Config) DevListen() string {
	if c.DevBackend.Listen == "" {
		return ":8080"
	}
	return c.DevBackend.Listen
}

func (c *Config) BackupInterval() time.Duration {
	if c.DevBackend.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DevBackend.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.DevBackend.Backup.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.DevBackend.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) ReminderLead() time.Duration {
	if c.DevBackend.Reminders.LeadMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.DevBackend.Reminders.LeadMinutes) * time.Minute
}

func (c *Config) ReminderInterval() time.Duration {
	if c.DevBackend.Reminders.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.DevBackend.Reminders.IntervalSeconds) * time.Second
}
