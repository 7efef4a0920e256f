// Package config provides application configuration loaded from defaults,
// an optional config file and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	ESign    ESignConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Session  SessionConfig
	Log      LogConfig
	App      AppConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database connection settings.
// Driver is either "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
	Debug    bool
}

// ESignConfig holds the signature API fallback credentials and per-operation timeouts.
// Credentials stored through the settings endpoint take precedence.
type ESignConfig struct {
	BaseURL       string
	Token         string
	CreateTimeout time.Duration
	LaunchTimeout time.Duration
	StatusTimeout time.Duration
	FetchTimeout  time.Duration
}

// RedisConfig enables the distributed refresh lock when URL is set.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// KafkaConfig enables lifecycle event publishing when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SessionConfig holds the cookie signing secret.
type SessionConfig struct {
	Secret string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string
	Stdout bool
	File   string
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev           bool
	Migrations    bool
	MigrationsDir string
	TemplatesFile string
	PollBatch     int
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// SetDefaults registers every key with its development default so that
// environment variables are picked up by AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "esign")
	v.SetDefault("database.password", "esign123")
	v.SetDefault("database.name", "esign")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "esign.db")
	v.SetDefault("database.debug", false)

	v.SetDefault("esign.base_url", "")
	v.SetDefault("esign.token", "")
	v.SetDefault("esign.create_timeout", 30*time.Second)
	v.SetDefault("esign.launch_timeout", 30*time.Second)
	v.SetDefault("esign.status_timeout", 15*time.Second)
	v.SetDefault("esign.fetch_timeout", 60*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "sale.signature")

	v.SetDefault("session.secret", "devsessionsecret")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file", "")

	v.SetDefault("app.dev", false)
	v.SetDefault("app.migrations", false)
	v.SetDefault("app.migrations_dir", "migrations")
	v.SetDefault("app.templates_file", "")
	v.SetDefault("app.poll_batch", 100)
}

// Load reads configuration from v. Keys map to environment variables with
// dots replaced by underscores (esign.base_url -> ESIGN_BASE_URL).
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("database.driver")),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.name"),
			SSLMode:  v.GetString("database.sslmode"),
			Path:     v.GetString("database.path"),
			Debug:    v.GetBool("database.debug"),
		},
		ESign: ESignConfig{
			BaseURL:       strings.TrimRight(v.GetString("esign.base_url"), "/"),
			Token:         v.GetString("esign.token"),
			CreateTimeout: v.GetDuration("esign.create_timeout"),
			LaunchTimeout: v.GetDuration("esign.launch_timeout"),
			StatusTimeout: v.GetDuration("esign.status_timeout"),
			FetchTimeout:  v.GetDuration("esign.fetch_timeout"),
		},
		Redis: RedisConfig{
			URL:     v.GetString("redis.url"),
			LockTTL: v.GetDuration("redis.lock_ttl"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Session: SessionConfig{
			Secret: v.GetString("session.secret"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Stdout: v.GetBool("log.stdout"),
			File:   v.GetString("log.file"),
		},
		App: AppConfig{
			Dev:           v.GetBool("app.dev"),
			Migrations:    v.GetBool("app.migrations"),
			MigrationsDir: v.GetString("app.migrations_dir"),
			TemplatesFile: v.GetString("app.templates_file"),
			PollBatch:     v.GetInt("app.poll_batch"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if !c.App.Dev && c.Session.Secret == "devsessionsecret" {
		return fmt.Errorf("config: session.secret must be set outside dev mode")
	}
	if c.App.PollBatch <= 0 {
		c.App.PollBatch = 100
	}
	return nil
}

// splitList accepts both a real list and a single comma separated value,
// which is what an environment variable yields.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
