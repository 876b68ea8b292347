package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Agent    AgentConfig    `yaml:"agent"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Observer ObserverConfig `yaml:"observer"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	JWTSecret    string        `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AgentConfig struct {
	DeviceID     string        `yaml:"device_id"`
	DeviceKey    string        `yaml:"device_key"`
	ServerURL    string        `yaml:"server_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PrintTimeout time.Duration `yaml:"print_timeout"`
	WorkerCount  int           `yaml:"worker_count"`
	ClaimLease   time.Duration `yaml:"claim_lease"`
	PrintCommand string        `yaml:"print_command"`
	PrintArgs    []string      `yaml:"print_args"`
}

type SweeperConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Retention time.Duration `yaml:"retention"`
}

type ObserverConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BufferSize   int           `yaml:"buffer_size"`
}

type NotifyConfig struct {
	Enabled     bool            `yaml:"enabled"`
	Timeout     time.Duration   `yaml:"timeout"`
	RetryCount  int             `yaml:"retry_count"`
	RetryDelay  time.Duration   `yaml:"retry_delay"`
	WorkerCount int             `yaml:"worker_count"`
	QueueSize   int             `yaml:"queue_size"`
	Webhooks    []WebhookTarget `yaml:"webhooks"`
}

type WebhookTarget struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printflow.db",
		},
		Agent: AgentConfig{
			ServerURL:    "http://localhost:8080",
			PollInterval: 5 * time.Second,
			PrintTimeout: 60 * time.Second,
			WorkerCount:  2,
			ClaimLease:   5 * time.Minute,
		},
		Sweeper: SweeperConfig{
			Interval:  1 * time.Hour,
			Retention: 30 * 24 * time.Hour,
		},
		Observer: ObserverConfig{
			PollInterval: 3 * time.Second,
			BufferSize:   64,
		},
		Notify: NotifyConfig{
			Enabled:     false,
			Timeout:     10 * time.Second,
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			WorkerCount: 3,
			QueueSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINTFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTFLOW_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PRINTFLOW_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}

	if v := os.Getenv("PRINTFLOW_DEVICE_ID"); v != "" {
		cfg.Agent.DeviceID = v
	}

	if v := os.Getenv("PRINTFLOW_DEVICE_KEY"); v != "" {
		cfg.Agent.DeviceKey = v
	}

	if v := os.Getenv("PRINTFLOW_SERVER_URL"); v != "" {
		cfg.Agent.ServerURL = v
	}

	if v := os.Getenv("PRINTFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent poll interval must be positive")
	}

	if c.Agent.PrintTimeout <= 0 {
		return fmt.Errorf("agent print timeout must be positive")
	}

	if c.Agent.WorkerCount < 1 {
		return fmt.Errorf("agent worker count must be at least 1")
	}

	if c.Agent.ClaimLease < c.Agent.PrintTimeout {
		return fmt.Errorf("agent claim lease must be at least the print timeout")
	}

	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper interval must be positive")
	}

	if c.Sweeper.Retention <= 0 {
		return fmt.Errorf("sweeper retention must be positive")
	}

	if c.Observer.PollInterval <= 0 {
		return fmt.Errorf("observer poll interval must be positive")
	}

	if c.Observer.BufferSize < 1 {
		return fmt.Errorf("observer buffer size must be at least 1")
	}

	if c.Notify.Enabled {
		if c.Notify.WorkerCount < 1 {
			return fmt.Errorf("notify worker count must be at least 1")
		}
		if c.Notify.QueueSize < 1 {
			return fmt.Errorf("notify queue size must be at least 1")
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
