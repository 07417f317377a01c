package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server and notifier configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Presenter   PresenterConfig   `yaml:"presenter"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Seed        []SeedHolding     `yaml:"seed,omitempty"`
}

type ServerConfig struct {
	HTTPAddr        string `yaml:"http_addr"`
	GRPCAddr        string `yaml:"grpc_addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	// Driver is one of memory, redis or mysql.
	Driver        string `yaml:"driver"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPoolSize int    `yaml:"redis_pool_size"`
	MySQLDSN      string `yaml:"mysql_dsn"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	MaxIdleConns  int    `yaml:"max_idle_conns"`
	Migrate       bool   `yaml:"migrate"`
}

type PresenterConfig struct {
	// Driver is log or kafka. kafka also logs.
	Driver  string   `yaml:"driver"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type NegotiationConfig struct {
	SelectionTimeout    string `yaml:"selection_timeout"`
	QuantityTimeout     string `yaml:"quantity_timeout"`
	ConfirmationTimeout string `yaml:"confirmation_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// SeedHolding is granted at startup; handy with the memory driver.
type SeedHolding struct {
	OwnerID  string `yaml:"owner_id"`
	ItemID   string `yaml:"item_id"`
	Quantity int    `yaml:"quantity"`
}

var (
	ValidStorageDrivers   = []string{"memory", "redis", "mysql"}
	ValidPresenterDrivers = []string{"log", "kafka"}
)

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ShutdownTimeout: "5s",
		},
		Storage: StorageConfig{
			Driver:        "memory",
			RedisAddr:     "localhost:6379",
			RedisPoolSize: 100,
			MySQLDSN:      "root:root@tcp(localhost:3306)/trades?parseTime=true",
			MaxOpenConns:  50,
			MaxIdleConns:  25,
			Migrate:       true,
		},
		Presenter: PresenterConfig{
			Driver:  "log",
			Brokers: []string{"localhost:9092"},
			Topic:   "trade-events",
			GroupID: "trade-notifier",
		},
		Negotiation: NegotiationConfig{
			SelectionTimeout:    "2m",
			QuantityTimeout:     "2m",
			ConfirmationTimeout: "5m",
		},
		Auth: AuthConfig{
			TokenTTL: "24h",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty or missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRADE_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("TRADE_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv("TRADE_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Storage.MySQLDSN = v
	}
	if v := os.Getenv("TRADE_PRESENTER"); v != "" {
		c.Presenter.Driver = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Presenter.Brokers = splitList(v)
	}
	if v := os.Getenv("TRADE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("TRADE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

func (c *Config) GetSelectionTimeout() time.Duration {
	return parseDuration(c.Negotiation.SelectionTimeout, 2*time.Minute)
}

func (c *Config) GetQuantityTimeout() time.Duration {
	return parseDuration(c.Negotiation.QuantityTimeout, 2*time.Minute)
}

func (c *Config) GetConfirmationTimeout() time.Duration {
	return parseDuration(c.Negotiation.ConfirmationTimeout, 5*time.Minute)
}

func (c *Config) GetTokenTTL() time.Duration {
	return parseDuration(c.Auth.TokenTTL, 24*time.Hour)
}

func (c *Config) Validate() error {
	if !slices.Contains(ValidStorageDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidStorageDrivers)
	}
	if !slices.Contains(ValidPresenterDrivers, c.Presenter.Driver) {
		return fmt.Errorf("invalid presenter driver: %s (valid: %v)", c.Presenter.Driver, ValidPresenterDrivers)
	}
	if c.Presenter.Driver == "kafka" && (len(c.Presenter.Brokers) == 0 || c.Presenter.Topic == "") {
		return fmt.Errorf("kafka presenter needs brokers and a topic")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret not configured (set auth.jwt_secret or TRADE_JWT_SECRET)")
	}

	timeouts := map[string]string{
		"negotiation.selection_timeout":    c.Negotiation.SelectionTimeout,
		"negotiation.quantity_timeout":     c.Negotiation.QuantityTimeout,
		"negotiation.confirmation_timeout": c.Negotiation.ConfirmationTimeout,
	}
	for name, raw := range timeouts {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	for _, h := range c.Seed {
		if h.OwnerID == "" || h.ItemID == "" || h.Quantity < 0 {
			return fmt.Errorf("invalid seed holding %+v", h)
		}
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
