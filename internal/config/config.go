package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Notify    NotifyConfig    `yaml:"notify"`
	Partners  []PartnerConfig `yaml:"partners"`
	Sync      SyncConfig      `yaml:"sync"`
	Wallet    WalletConfig    `yaml:"wallet"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration.
// The broker only carries credit events to downstream consumers and is off
// unless enabled.
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Queues          []string      `yaml:"queues"`
	Concurrency     int           `yaml:"concurrency"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	IdleSleep       time.Duration `yaml:"idle_sleep"`
	MaxAttempts     int           `yaml:"max_attempts"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RateLimitConfig holds the per-client limit applied by the API
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int64         `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// NotifyConfig holds notification provider settings
type NotifyConfig struct {
	Brand    string         `yaml:"brand"`
	SendGrid SendGridConfig `yaml:"sendgrid"`
	MSG91    MSG91Config    `yaml:"msg91"`
}

// SendGridConfig holds SendGrid settings. An empty key means log-only delivery.
type SendGridConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	FromEmail     string        `yaml:"from_email"`
	FromName      string        `yaml:"from_name"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// MSG91Config holds MSG91 settings. An empty key means log-only delivery.
type MSG91Config struct {
	AuthKey       string        `yaml:"auth_key"`
	BaseURL       string        `yaml:"base_url"`
	SenderID      string        `yaml:"sender_id"`
	FlowID        string        `yaml:"flow_id"`
	CountryPrefix string        `yaml:"country_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// PartnerConfig describes one affiliate network endpoint
type PartnerConfig struct {
	Network       string        `yaml:"network"`
	URL           string        `yaml:"url"`
	AuthHeader    string        `yaml:"auth_header"`
	AuthValue     string        `yaml:"auth_value"`
	PageSize      int           `yaml:"page_size"`
	MaxPages      int           `yaml:"max_pages"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// SyncConfig holds reconciliation scheduling
type SyncConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Schedule         string        `yaml:"schedule"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	Lookback         time.Duration `yaml:"lookback"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
}

// WalletConfig holds wallet mutation limits
type WalletConfig struct {
	LockTTL               time.Duration `yaml:"lock_ttl"`
	MinWithdrawal         string        `yaml:"min_withdrawal"`
	MaxPendingWithdrawals int           `yaml:"max_pending_withdrawals"`
}

// MinWithdrawalAmount parses MinWithdrawal; empty means no minimum
func (w WalletConfig) MinWithdrawalAmount() (decimal.Decimal, error) {
	if w.MinWithdrawal == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(w.MinWithdrawal)
}

// Load reads the configuration file, expands ${ENV} references and applies
// defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Database.RetryAttempts == 0 {
		c.Database.RetryAttempts = 1
	}
	if c.Database.RetryInterval == 0 {
		c.Database.RetryInterval = 2 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if len(c.Worker.Queues) == 0 {
		c.Worker.Queues = []string{"email", "sms", "cashback"}
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.PollTimeout == 0 {
		c.Worker.PollTimeout = 2 * time.Second
	}
	if c.Worker.IdleSleep == 0 {
		c.Worker.IdleSleep = 100 * time.Millisecond
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 3
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}

	if c.Notify.Brand == "" {
		c.Notify.Brand = "Cashback"
	}

	if c.Sync.Schedule == "" {
		c.Sync.Schedule = "0 2 * * *"
	}
	if c.Sync.LockTTL == 0 {
		c.Sync.LockTTL = time.Hour
	}
	if c.Sync.Lookback == 0 {
		c.Sync.Lookback = 30 * 24 * time.Hour
	}

	if c.Wallet.LockTTL == 0 {
		c.Wallet.LockTTL = 10 * time.Second
	}
	if c.Wallet.MaxPendingWithdrawals == 0 {
		c.Wallet.MaxPendingWithdrawals = 3
	}
}

// Validate checks the settings shared by every service
func (c *Config) Validate() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.Redis.Port < MinPort || c.Redis.Port > MaxPort {
		return fmt.Errorf("invalid redis port: %d (must be between %d and %d)", c.Redis.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	if _, err := c.Wallet.MinWithdrawalAmount(); err != nil {
		return fmt.Errorf("invalid wallet min_withdrawal %q: %w", c.Wallet.MinWithdrawal, err)
	}

	return nil
}

// ValidateAPIConfig checks the API service configuration
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit requests and window must be greater than 0")
	}

	return nil
}

// ValidateWorkerConfig checks the worker service configuration
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker max_attempts must be greater than 0")
	}

	if c.Worker.PollTimeout <= 0 {
		return fmt.Errorf("worker poll_timeout must be greater than 0")
	}

	if c.Worker.JobTimeout < 0 {
		return fmt.Errorf("worker job_timeout must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Sync.Enabled {
		if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", c.Sync.Schedule, err)
		}
	}

	for i, p := range c.Partners {
		if p.Network == "" {
			return fmt.Errorf("partner %d: network is required", i)
		}
		if p.URL == "" {
			return fmt.Errorf("partner %s: url is required", p.Network)
		}
	}

	return nil
}
