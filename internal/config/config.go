package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	API struct {
		BaseURL        string  `yaml:"base_url"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		RateBurst      int     `yaml:"rate_burst"`
	} `yaml:"api"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Availability struct {
		CacheTTLSeconds   int `yaml:"cache_ttl_seconds"`
		SearchWindowDays  int `yaml:"search_window_days"`
		BookingWindowDays int `yaml:"booking_window_days"`
	} `yaml:"availability"`

	Booking struct {
		SessionTimeoutMinutes int `yaml:"session_timeout_minutes"`
		MaxAdvanceDays        int `yaml:"max_advance_days"`
	} `yaml:"booking"`

	Reminders struct {
		Enabled              bool `yaml:"enabled"`
		CheckIntervalMinutes int  `yaml:"check_interval_minutes"`
		LeadHours            int  `yaml:"lead_hours"`
		RetentionDays        int  `yaml:"retention_days"`
	} `yaml:"reminders"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/carelink.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) AvailabilityCacheTTL() time.Duration {
	if c.Availability.CacheTTLSeconds <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(c.Availability.CacheTTLSeconds) * time.Second
}

// SearchWindowDays bounds the earliest-availability probe on doctor cards.
func (c *Config) SearchWindowDays() int {
	if c.Availability.SearchWindowDays <= 0 {
		return 2
	}
	return c.Availability.SearchWindowDays
}

// BookingWindowDays bounds the day stepper on the booking page; it may be
// wider than the card preview window.
func (c *Config) BookingWindowDays() int {
	if c.Availability.BookingWindowDays <= 0 {
		return 30
	}
	return c.Availability.BookingWindowDays
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Booking.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) ReminderCheckInterval() time.Duration {
	if c.Reminders.CheckIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Reminders.CheckIntervalMinutes) * time.Minute
}

func (c *Config) ReminderLead() time.Duration {
	if c.Reminders.LeadHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Reminders.LeadHours) * time.Hour
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
