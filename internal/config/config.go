// Package config loads application configuration from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Deployment modes. They decide where submissions go and where data is read from.
const (
	ModeLocal      = "local"
	ModeStaticDemo = "static-demo"
	ModeHostedAPI  = "hosted-api"
)

// Config holds configuration for both the agent and the development data server.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	Port       string `mapstructure:"PORT"`
	AgentPort  string `mapstructure:"AGENT_PORT"`
	DataDir    string `mapstructure:"DATA_DIR"`
	CORSOrigin string `mapstructure:"CORS_ORIGIN"`

	StoreURL       string `mapstructure:"STORE_URL"`
	DeploymentMode string `mapstructure:"DEPLOYMENT_MODE"`
	APIBaseURL     string `mapstructure:"API_BASE_URL"`
	DataBaseURL    string `mapstructure:"DATA_BASE_URL"`

	ReadTimeout        time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout       time.Duration `mapstructure:"WRITE_TIMEOUT"`
	SyncRetryDelay     time.Duration `mapstructure:"SYNC_RETRY_DELAY"`
	SyncInterval       time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncReconnectDelay time.Duration `mapstructure:"SYNC_RECONNECT_DELAY"`
	SyncStartupDelay   time.Duration `mapstructure:"SYNC_STARTUP_DELAY"`
	ProbeInterval      time.Duration `mapstructure:"PROBE_INTERVAL"`
	MaxAttempts        int           `mapstructure:"MAX_ATTEMPTS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "5500")
	v.SetDefault("AGENT_PORT", "8090")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("STORE_URL", "sqlite://agent.db")
	v.SetDefault("DEPLOYMENT_MODE", ModeLocal)
	v.SetDefault("API_BASE_URL", "http://localhost:5500")
	v.SetDefault("DATA_BASE_URL", "")
	v.SetDefault("READ_TIMEOUT", 5*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SYNC_RETRY_DELAY", time.Minute)
	v.SetDefault("SYNC_INTERVAL", 5*time.Minute)
	v.SetDefault("SYNC_RECONNECT_DELAY", time.Second)
	v.SetDefault("SYNC_STARTUP_DELAY", 2*time.Second)
	v.SetDefault("PROBE_INTERVAL", 15*time.Second)
	v.SetDefault("MAX_ATTEMPTS", 3)
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	// A missing .env is fine: production sets variables directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(strings.ToUpper(key))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.DeploymentMode = strings.ToLower(strings.TrimSpace(cfg.DeploymentMode))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the agent or server cannot run with.
func (c *Config) Validate() error {
	switch c.DeploymentMode {
	case ModeLocal, ModeStaticDemo, ModeHostedAPI:
	default:
		return fmt.Errorf("unknown DEPLOYMENT_MODE %q", c.DeploymentMode)
	}
	if c.DeploymentMode == ModeHostedAPI && c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required in hosted-api mode")
	}
	if c.StoreURL == "" {
		return errors.New("STORE_URL is required")
	}

	durations := map[string]time.Duration{
		"READ_TIMEOUT":         c.ReadTimeout,
		"WRITE_TIMEOUT":        c.WriteTimeout,
		"SYNC_RETRY_DELAY":     c.SyncRetryDelay,
		"SYNC_INTERVAL":        c.SyncInterval,
		"SYNC_RECONNECT_DELAY": c.SyncReconnectDelay,
		"SYNC_STARTUP_DELAY":   c.SyncStartupDelay,
		"PROBE_INTERVAL":       c.ProbeInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MaxAttempts < 1 {
		return errors.New("MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
