package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "evgrid/backend/libs/config"
	"evgrid/backend/libs/queue"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type HTTPConfig struct {
	Port string `yaml:"port" env:"OCPP_HTTP_PORT"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"OCPP_DB_DRIVER"`
	DSN      string `yaml:"dsn" env:"OCPP_POSTGRES_DSN"`
	MaxConns int32  `yaml:"maxConns" env:"OCPP_POSTGRES_MAX_CONNS"`
}

// RedisConfig enables the authorization cache when Addr is set.
type RedisConfig struct {
	Addr       string `yaml:"addr" env:"OCPP_REDIS_ADDR"`
	Password   string `yaml:"password" env:"OCPP_REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"OCPP_REDIS_DB"`
	TTLSeconds int    `yaml:"ttlSeconds" env:"OCPP_REDIS_TTL"`
}

type QueueConfig struct {
	Driver        string `yaml:"driver" env:"OCPP_QUEUE_DRIVER"`
	URL           string `yaml:"url" env:"OCPP_QUEUE_URL"`
	SubjectPrefix string `yaml:"subjectPrefix" env:"OCPP_QUEUE_SUBJECT_PREFIX"`
}

type WebSocketConfig struct {
	PingIntervalSeconds int `yaml:"pingIntervalSeconds" env:"OCPP_PING_INTERVAL"`
	WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"OCPP_WRITE_TIMEOUT"`
	MaxConcurrentCalls  int `yaml:"maxConcurrentCalls" env:"OCPP_MAX_CONCURRENT_CALLS"`
}

type OCPPConfig struct {
	CallTimeoutSeconds int    `yaml:"callTimeoutSeconds" env:"OCPP_CALL_TIMEOUT"`
	DefaultTenant      string `yaml:"defaultTenant" env:"OCPP_DEFAULT_TENANT"`
}

type TransactionsConfig struct {
	// CostUpdatedIntervalSeconds disables periodic cost updates when 0.
	CostUpdatedIntervalSeconds  int  `yaml:"costUpdatedIntervalSeconds" env:"OCPP_COST_UPDATED_INTERVAL"`
	SendCostUpdatedOnMeterValue bool `yaml:"sendCostUpdatedOnMeterValue" env:"OCPP_SEND_COST_ON_METER_VALUE"`
}

type SecurityConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"OCPP_JWT_SECRET"`
	BasicAuth bool   `yaml:"basicAuth" env:"OCPP_BASIC_AUTH"`
}

// Config defines OCPP server configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	OCPP         OCPPConfig         `yaml:"ocpp"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Security     SecurityConfig     `yaml:"security"`
}

// Default returns the configuration used before file and environment overrides.
func Default() *Config {
	return &Config{
		HTTP:     HTTPConfig{Port: "8081"},
		Database: DatabaseConfig{Driver: DriverPostgres, MaxConns: 25},
		Redis:    RedisConfig{TTLSeconds: 300},
		Queue:    QueueConfig{Driver: queue.DriverNone, SubjectPrefix: "evgrid"},
		WebSocket: WebSocketConfig{
			PingIntervalSeconds: 30,
			WriteTimeoutSeconds: 15,
			MaxConcurrentCalls:  8,
		},
		OCPP: OCPPConfig{CallTimeoutSeconds: 30, DefaultTenant: "default"},
	}
}

// Load uses shared config loader and validates required fields.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver names and the settings each driver needs.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database DSN is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}

	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	switch c.Queue.Driver {
	case "", queue.DriverNone:
	case queue.DriverNATS, queue.DriverRabbitMQ:
		if strings.TrimSpace(c.Queue.URL) == "" {
			return fmt.Errorf("config: queue url is required for %s", c.Queue.Driver)
		}
	default:
		return fmt.Errorf("config: unknown queue driver %q", c.Queue.Driver)
	}

	if c.Transactions.CostUpdatedIntervalSeconds < 0 {
		return errors.New("config: costUpdatedIntervalSeconds must not be negative")
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8081"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	return seconds(c.WebSocket.PingIntervalSeconds, 30*time.Second)
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return seconds(c.WebSocket.WriteTimeoutSeconds, 15*time.Second)
}

// CallTimeout bounds how long a server call waits for the station.
func (c *Config) CallTimeout() time.Duration {
	return seconds(c.OCPP.CallTimeoutSeconds, 30*time.Second)
}

// RedisTTL returns how long authorization records stay cached.
func (c *Config) RedisTTL() time.Duration {
	return seconds(c.Redis.TTLSeconds, 5*time.Minute)
}

// CostUpdatedInterval returns 0 when periodic cost updates are off.
func (c *Config) CostUpdatedInterval() time.Duration {
	return time.Duration(c.Transactions.CostUpdatedIntervalSeconds) * time.Second
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
