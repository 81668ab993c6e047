package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // pricing timezones must resolve on minimal images

	"storagebooking/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig        `yaml:"app"`
	Database      DatabaseConfig   `yaml:"database"`
	Redis         RedisConfig      `yaml:"redis"`
	Backup        BackupConfig     `yaml:"backup"`
	Monitoring    MonitoringConfig `yaml:"monitoring"`
	Logging       LoggingConfig    `yaml:"logging"`
	API           APIConfig        `yaml:"api"`
	Booking       BookingConfig    `yaml:"booking"`
	Pricing       PricingConfig    `yaml:"pricing"`
	Refund        RefundConfig     `yaml:"refund"`
	Payment       PaymentConfig    `yaml:"payment"`
	Worker        WorkerConfig     `yaml:"worker"`
	InventoryPath string           `yaml:"inventory_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	HeaderUserID string         `yaml:"header_user_id"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
	MaxTxRetries  int    `yaml:"max_tx_retries"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BackupConfig.Schedule is a cron spec ("0 3 * * *") or a Go duration ("24h").
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type BookingConfig struct {
	MinDuration      time.Duration `yaml:"min_duration"`
	MaxAdvanceDays   int           `yaml:"max_advance_days"`
	CheckInWindow    time.Duration `yaml:"check_in_window"`
	CodeAttempts     int           `yaml:"code_attempts"`
	CreateRateLimit  int           `yaml:"create_rate_limit"`
	CreateRateWindow time.Duration `yaml:"create_rate_window"`
	WebhookLockTTL   time.Duration `yaml:"webhook_lock_ttl"`
}

// PricingConfig.TaxRate is a fraction; nil means the engine default.
type PricingConfig struct {
	TaxRate  *float64 `yaml:"tax_rate"`
	Timezone string   `yaml:"timezone"`
}

type RefundTier struct {
	MinNotice time.Duration `yaml:"min_notice"`
	Percent   int           `yaml:"percent"`
}

type RefundConfig struct {
	Tiers []RefundTier `yaml:"tiers"`
}

type PaymentConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`
}

type WorkerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Pricing.TaxRate != nil && (*c.Pricing.TaxRate < 0 || *c.Pricing.TaxRate >= 1) {
		return fmt.Errorf("pricing tax_rate %.4f must be in [0, 1)", *c.Pricing.TaxRate)
	}
	if c.Pricing.Timezone != "" {
		if _, err := time.LoadLocation(c.Pricing.Timezone); err != nil {
			return fmt.Errorf("pricing timezone: %w", err)
		}
	}
	if c.Booking.MinDuration < time.Minute {
		return fmt.Errorf("booking min_duration %s is too short", c.Booking.MinDuration)
	}
	for _, t := range c.Refund.Tiers {
		if t.Percent < 0 || t.Percent > 100 {
			return fmt.Errorf("refund tier percent %d out of range", t.Percent)
		}
	}
	switch c.Payment.Mode {
	case "sandbox", "disabled":
	default:
		return fmt.Errorf("unknown payment mode %q", c.Payment.Mode)
	}
	seen := make(map[string]bool)
	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key %q has empty key", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client %q", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

// Location returns the pricing timezone, UTC when unset.
func (c *Config) Location() *time.Location {
	if c.Pricing.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Pricing.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "storagebooking"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.Auth.HeaderUserID == "" {
		c.API.Auth.HeaderUserID = "x-user-id"
	}

	if c.Database.BusyTimeoutMs == 0 {
		c.Database.BusyTimeoutMs = 5000
	}
	if c.Database.MaxTxRetries == 0 {
		c.Database.MaxTxRetries = 3
	}

	if c.Booking.MinDuration == 0 {
		c.Booking.MinDuration = models.DefaultMinBookingDuration
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.CheckInWindow == 0 {
		c.Booking.CheckInWindow = models.DefaultCheckInWindow
	}
	if c.Booking.CodeAttempts == 0 {
		c.Booking.CodeAttempts = models.DefaultCodeAttempts
	}
	if c.Booking.CreateRateLimit == 0 {
		c.Booking.CreateRateLimit = models.DefaultCreateRateLimit
	}
	if c.Booking.CreateRateWindow == 0 {
		c.Booking.CreateRateWindow = models.DefaultCreateRateWindow
	}
	if c.Booking.WebhookLockTTL == 0 {
		c.Booking.WebhookLockTTL = models.DefaultWebhookLockTTL
	}

	if c.Payment.Mode == "" {
		if c.Payment.Enabled {
			c.Payment.Mode = "sandbox"
		} else {
			c.Payment.Mode = "disabled"
		}
	}

	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}
}
