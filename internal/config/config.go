package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // timezone database for app.timezone

	"campspots/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Admin      AdminConfig      `yaml:"admin"`
	Booking    BookingConfig    `yaml:"booking"`
	Payment    PaymentConfig    `yaml:"payment"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// Timezone decides what "today" means for arrival date validation.
	Timezone string `yaml:"timezone"`
}

type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	HTTP    APIHTTPConfig `yaml:"http"`
	GRPC    APIGRPCConfig `yaml:"grpc"`
	Auth    APIAuthConfig `yaml:"auth"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	// PublicBaseURL prefixes the payment return links handed to the processor.
	PublicBaseURL string `yaml:"public_base_url"`
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
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type AdminConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type BookingConfig struct {
	Currency       string        `yaml:"currency"`
	MaxAdvanceDays int           `yaml:"max_advance_days"`
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

const (
	PaymentProviderStripe  = "stripe"
	PaymentProviderSandbox = "sandbox"
)

type PaymentConfig struct {
	Provider          string        `yaml:"provider"`
	SecretKey         string        `yaml:"secret_key"`
	APIBaseURL        string        `yaml:"api_base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int64         `yaml:"max_retries"`
}

type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
	Debug    bool    `yaml:"debug"`
}

type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

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

type GoogleConfig struct {
	GoogleCredentialsFile    string `yaml:"credentials_file"`
	ReservationSpreadSheetID string `yaml:"reservations_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
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

	switch c.Payment.Provider {
	case PaymentProviderSandbox:
	case PaymentProviderStripe:
		if c.Payment.SecretKey == "" {
			return errors.New("payment secret key is required for the stripe provider")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payment.Provider)
	}

	if c.Booking.PendingTTL <= 0 {
		return errors.New("booking pending_ttl must be positive")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	if c.Admin.PasswordHash != "" && c.Admin.JWTSecret == "" {
		return errors.New("admin jwt secret is required when a password hash is set")
	}
	return nil
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "campspots"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.PublicBaseURL == "" {
		c.API.HTTP.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.API.HTTP.Port)
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
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

	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Admin.TokenTTL == 0 {
		c.Admin.TokenTTL = 12 * time.Hour
	}

	// Booking defaults
	if c.Booking.Currency == "" {
		c.Booking.Currency = models.DefaultCurrency
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = 365
	}
	if c.Booking.PendingTTL == 0 {
		c.Booking.PendingTTL = 2 * time.Hour
	}
	if c.Booking.SweepInterval == 0 {
		c.Booking.SweepInterval = 10 * time.Minute
	}
	if c.Booking.SweepBatchSize == 0 {
		c.Booking.SweepBatchSize = 100
	}
	if c.Booking.IdempotencyTTL == 0 {
		c.Booking.IdempotencyTTL = 24 * time.Hour
	}

	if c.Payment.Provider == "" {
		c.Payment.Provider = PaymentProviderSandbox
	}
	if c.Payment.Timeout == 0 {
		c.Payment.Timeout = 10 * time.Second
	}
	if c.Payment.RequestsPerSecond == 0 {
		c.Payment.RequestsPerSecond = 20
	}
	if c.Payment.Burst == 0 {
		c.Payment.Burst = 5
	}

	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "campspots.reservations"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
