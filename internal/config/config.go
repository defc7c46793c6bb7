package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port                  int      `yaml:"port"`
		APIKey                string   `yaml:"api_key"`
		AllowedOrigins        []string `yaml:"allowed_origins"`
		RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Schedule      string `yaml:"schedule"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		TaxRate              string `yaml:"tax_rate"`
		Timezone             string `yaml:"timezone"`
		AutoConfirm          *bool  `yaml:"auto_confirm"`
		MaxReferenceAttempts int    `yaml:"max_reference_attempts"`
		MinAdults            int    `yaml:"min_adults"`
		MaxAdults            int    `yaml:"max_adults"`
		MaxChildren          int    `yaml:"max_children"`
		MaxAdvanceDays       int    `yaml:"max_advance_days"`
		Currency             string `yaml:"currency"`
	} `yaml:"booking"`

	Notifications struct {
		QueueSize          int     `yaml:"queue_size"`
		Workers            int     `yaml:"workers"`
		RatePerSecond      float64 `yaml:"rate_per_second"`
		Burst              int     `yaml:"burst"`
		SendTimeoutSeconds int     `yaml:"send_timeout_seconds"`
		SiteBaseURL        string  `yaml:"site_base_url"`

		SMTP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			From     string `yaml:"from"`
			FromName string `yaml:"from_name"`
		} `yaml:"smtp"`

		Telegram struct {
			BotToken     string  `yaml:"bot_token"`
			StaffChatIDs []int64 `yaml:"staff_chat_ids"`
		} `yaml:"telegram"`
	} `yaml:"notifications"`

	Reminders struct {
		Enabled             bool `yaml:"enabled"`
		HoursBefore         int  `yaml:"hours_before"`
		PollIntervalMinutes int  `yaml:"poll_interval_minutes"`
	} `yaml:"reminders"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		Schedule      string `yaml:"schedule"`
		ExportDir     string `yaml:"export_dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RoomsConfigPath string `yaml:"rooms_config_path"`
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

	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = 30
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/daimaescape.db"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.TaxRate == "" {
		c.Booking.TaxRate = "0.18"
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "Africa/Dar_es_Salaam"
	}
	if c.Booking.MaxReferenceAttempts <= 0 {
		c.Booking.MaxReferenceAttempts = 20
	}
	if c.Booking.MinAdults <= 0 {
		c.Booking.MinAdults = 1
	}
	if c.Booking.MaxAdults <= 0 {
		c.Booking.MaxAdults = 10
	}
	if c.Booking.MaxChildren <= 0 {
		c.Booking.MaxChildren = 6
	}
	if c.Booking.MaxAdvanceDays <= 0 {
		c.Booking.MaxAdvanceDays = 365
	}
	if c.Booking.Currency == "" {
		c.Booking.Currency = "TSh"
	}
	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = 256
	}
	if c.Notifications.Workers <= 0 {
		c.Notifications.Workers = 2
	}
	if c.Notifications.RatePerSecond <= 0 {
		c.Notifications.RatePerSecond = 5
	}
	if c.Notifications.Burst <= 0 {
		c.Notifications.Burst = 10
	}
	if c.Notifications.SendTimeoutSeconds <= 0 {
		c.Notifications.SendTimeoutSeconds = 15
	}
	if c.Notifications.SMTP.Port == 0 {
		c.Notifications.SMTP.Port = 587
	}
	if c.Notifications.SMTP.From == "" {
		c.Notifications.SMTP.From = "noreply@daimaescape.com"
	}
	if c.Notifications.SMTP.FromName == "" {
		c.Notifications.SMTP.FromName = "Daima Escape"
	}
	if c.Reminders.HoursBefore <= 0 {
		c.Reminders.HoursBefore = 24
	}
	if c.Reminders.PollIntervalMinutes <= 0 {
		c.Reminders.PollIntervalMinutes = 15
	}
	if c.Audit.Schedule == "" {
		c.Audit.Schedule = "1 0 1 * *"
	}
	if c.Audit.ExportDir == "" {
		c.Audit.ExportDir = "exports"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 365
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.RoomsConfigPath == "" {
		c.RoomsConfigPath = "configs/rooms.yaml"
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	rate, err := decimal.NewFromString(c.Booking.TaxRate)
	if err != nil {
		return fmt.Errorf("booking.tax_rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("booking.tax_rate must be in [0, 1), got %s", c.Booking.TaxRate)
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	if c.Booking.MinAdults > c.Booking.MaxAdults {
		return fmt.Errorf("booking.min_adults (%d) exceeds booking.max_adults (%d)", c.Booking.MinAdults, c.Booking.MaxAdults)
	}
	if c.Notifications.Telegram.BotToken != "" && len(c.Notifications.Telegram.StaffChatIDs) == 0 {
		return fmt.Errorf("notifications.telegram.staff_chat_ids is required when a bot token is set")
	}
	return nil
}

// TaxRate returns the configured VAT rate.
func (c *Config) TaxRate() decimal.Decimal {
	return decimal.RequireFromString(c.Booking.TaxRate)
}

// Location returns the business timezone used to decide "today".
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AutoConfirm reports whether new bookings start confirmed.
func (c *Config) AutoConfirm() bool {
	if c.Booking.AutoConfirm == nil {
		return true
	}
	return *c.Booking.AutoConfirm
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Notifications.SendTimeoutSeconds) * time.Second
}

func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.Reminders.HoursBefore) * time.Hour
}

func (c *Config) ReminderPollInterval() time.Duration {
	return time.Duration(c.Reminders.PollIntervalMinutes) * time.Minute
}

func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}
