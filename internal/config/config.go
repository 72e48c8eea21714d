package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "clubportal/pkg/config"
)

// EmailConfig drives the dispatcher and the SendGrid transport.
type EmailConfig struct {
	SendGridKey string `yaml:"sendgrid_key"`
	FromName    string `yaml:"from_name"`
	FromEmail   string `yaml:"from_email"`
	DailyLimit  int    `yaml:"daily_limit"`
	SendDelayMS int    `yaml:"send_delay_ms"`
}

// DigestConfig drives the coverage digest scheduler.
type DigestConfig struct {
	Weekday     string `yaml:"weekday"`
	TickMinutes int    `yaml:"tick_minutes"`
}

// Config is the full clubportal configuration, shared by both binaries.
type Config struct {
	DB       pkgconfig.DBConfig     `yaml:"db"`
	MQ       pkgconfig.MQConfig     `yaml:"mq"`
	Redis    pkgconfig.RedisConfig  `yaml:"redis"`
	JWT      pkgconfig.JWTConfig    `yaml:"jwt"`
	Portal   pkgconfig.ServerConfig `yaml:"portal"`
	Notifier pkgconfig.ServerConfig `yaml:"notifier"`
	Email    EmailConfig            `yaml:"email"`
	Digest   DigestConfig           `yaml:"digest"`
}

// SendDelay returns the inter-message dispatch delay.
func (c *Config) SendDelay() time.Duration {
	return time.Duration(c.Email.SendDelayMS) * time.Millisecond
}

// DigestTick returns the scheduler tick interval.
func (c *Config) DigestTick() time.Duration {
	return time.Duration(c.Digest.TickMinutes) * time.Minute
}

// Load reads the layered YAML configuration for the active environment and
// applies environment-variable overrides on top.
func Load() (*Config, error) {
	raw, err := pkgconfig.LoadConfig(pkgconfig.GetConfigEnv(), "")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Round-trip through YAML to get the typed view of the merged map.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-marshal config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)

	if key := pkgconfig.GetEnv("SENDGRID_API_KEY", ""); key != "" {
		cfg.Email.SendGridKey = key
	}
	if port := pkgconfig.GetEnv("PORTAL_PORT", ""); port != "" {
		cfg.Portal.Port = port
	}
	if port := pkgconfig.GetEnv("NOTIFIER_PORT", ""); port != "" {
		cfg.Notifier.Port = port
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Email.DailyLimit <= 0 {
		c.Email.DailyLimit = 450
	}
	if c.Email.SendDelayMS <= 0 {
		c.Email.SendDelayMS = 1000
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Club Portal"
	}
	if c.Digest.Weekday == "" {
		c.Digest.Weekday = "monday"
	}
	if c.Digest.TickMinutes <= 0 {
		c.Digest.TickMinutes = 60
	}
	if c.Portal.Port == "" {
		c.Portal.Port = "8080"
	}
	if c.Notifier.Port == "" {
		c.Notifier.Port = "8081"
	}
}
