package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Service Configuration
	ServiceName string `env:"XRAYGUARD_SERVICE" envDefault:"xray"`

	// Stats API Configuration
	APIHost    string `env:"XRAYGUARD_API_HOST" envDefault:"127.0.0.1"`
	APIPort    int    `env:"XRAYGUARD_API_PORT" envDefault:"10085"`
	XrayBinary string `env:"XRAYGUARD_XRAY_BIN" envDefault:"xray"`

	// Quota Store Configuration
	QuotaFile string `env:"XRAYGUARD_QUOTA_FILE" envDefault:"/usr/local/etc/xray/quota.json"`

	// Logging Configuration
	LogLevel string `env:"XRAYGUARD_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"XRAYGUARD_LOG_FILE" envDefault:"~/.xrayguard/xrayguard.log"`

	// Timeouts (seconds)
	SystemctlTimeout int `env:"XRAYGUARD_SYSTEMCTL_TIMEOUT" envDefault:"10"`
	StartTimeout     int `env:"XRAYGUARD_START_TIMEOUT" envDefault:"30"`
	StopTimeout      int `env:"XRAYGUARD_STOP_TIMEOUT" envDefault:"30"`
	RestartTimeout   int `env:"XRAYGUARD_RESTART_TIMEOUT" envDefault:"60"`
	StatsTimeout     int `env:"XRAYGUARD_STATS_TIMEOUT" envDefault:"10"`
}

// Load loads the configuration from environment variables and an
// optional .env file in the working directory.
func Load() (*Config, error) {
	// Missing .env is fine, env vars alone are a full configuration
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return nil, fmt.Errorf("invalid stats API port: %d", cfg.APIPort)
	}

	return cfg, nil
}

// ServerAddress returns the stats API endpoint as host:port
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// Duration helpers for the timeout fields

func (c *Config) SystemctlTimeoutDuration() time.Duration {
	return time.Duration(c.SystemctlTimeout) * time.Second
}

func (c *Config) StartTimeoutDuration() time.Duration {
	return time.Duration(c.StartTimeout) * time.Second
}

func (c *Config) StopTimeoutDuration() time.Duration {
	return time.Duration(c.StopTimeout) * time.Second
}

func (c *Config) RestartTimeoutDuration() time.Duration {
	return time.Duration(c.RestartTimeout) * time.Second
}

func (c *Config) StatsTimeoutDuration() time.Duration {
	return time.Duration(c.StatsTimeout) * time.Second
}
