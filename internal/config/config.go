package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Mail      MailConfig      `mapstructure:"mail"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`    // connection string
}

// MailConfig holds outbound email settings
type MailConfig struct {
	Provider    string `mapstructure:"provider"` // "resend"
	APIKey      string `mapstructure:"api_key"`
	SenderName  string `mapstructure:"sender_name"`
	SenderEmail string `mapstructure:"sender_email"`
}

// DispatchConfig holds dispatcher tuning
type DispatchConfig struct {
	WindowMinutes     int `mapstructure:"window_minutes"`     // dispatch window, matches trigger cadence
	Workers           int `mapstructure:"workers"`            // cross-newsletter parallelism
	FetchTimeoutSecs  int `mapstructure:"fetch_timeout_secs"` // per-source-module timeout
	SourceParallelism int `mapstructure:"source_parallelism"` // within-newsletter fetch parallelism
}

// Window returns the dispatch window as a duration
func (c DispatchConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// FetchTimeout returns the per-module fetch timeout as a duration
func (c DispatchConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// SchedulerConfig holds the background trigger settings
type SchedulerConfig struct {
	DispatchCron string `mapstructure:"dispatch_cron"` // cron expression for dispatch runs
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".newsletter-engine"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("NEWSLETTER")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.driver", "NEWSLETTER_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "NEWSLETTER_DATABASE_DSN")
	v.BindEnv("mail.api_key", "NEWSLETTER_MAIL_API_KEY")
	v.BindEnv("mail.sender_name", "NEWSLETTER_MAIL_SENDER_NAME")
	v.BindEnv("mail.sender_email", "NEWSLETTER_MAIL_SENDER_EMAIL")
	v.BindEnv("dispatch.window_minutes", "NEWSLETTER_DISPATCH_WINDOW_MINUTES")
	v.BindEnv("dispatch.workers", "NEWSLETTER_DISPATCH_WORKERS")
	v.BindEnv("scheduler.dispatch_cron", "NEWSLETTER_SCHEDULER_DISPATCH_CRON")
	v.BindEnv("logging.level", "NEWSLETTER_LOGGING_LEVEL")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/newsletters.db")

	// Mail defaults
	v.SetDefault("mail.provider", "resend")
	v.SetDefault("mail.sender_name", "Newsletter Engine")

	// Dispatch defaults: window matches the production trigger cadence
	v.SetDefault("dispatch.window_minutes", 15)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.fetch_timeout_secs", 10)
	v.SetDefault("dispatch.source_parallelism", 4)

	// Scheduler defaults
	v.SetDefault("scheduler.dispatch_cron", "*/15 * * * *")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}
