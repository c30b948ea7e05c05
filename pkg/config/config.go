package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	App          AppConfig
	Vault        VaultConfig
	Vendor       VendorConfig
	Notification NotificationConfig
	Workers      WorkerConfig
	PhotoAPI     PhotoAPIConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level  string
	Format string // json or text
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string
	Version     string
	Name        string
}

// VaultConfig holds credential vault configuration. The passphrase and salt
// feed scrypt key derivation; both must be set outside development.
type VaultConfig struct {
	Passphrase string
	Salt       string
}

// VendorConfig holds telematics vendor call configuration
type VendorConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// NotificationConfig holds notification service configuration
type NotificationConfig struct {
	Email EmailConfig
	Slack SlackConfig
}

// EmailConfig holds email notification configuration
type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	FleetOpsList string
}

// SlackConfig holds Slack notification configuration
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
}

// WorkerConfig holds background worker intervals
type WorkerConfig struct {
	OverrideExpiryInterval time.Duration
	VendorSyncInterval     time.Duration
	VendorSyncBatchSize    int
}

// PhotoAPIConfig holds the photo validation collaborator configuration
type PhotoAPIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "immobilizer"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Name:        getEnv("APP_NAME", "immobilizer"),
		},
		Vault: VaultConfig{
			Passphrase: getEnv("VAULT_PASSPHRASE", ""),
			Salt:       getEnv("VAULT_SALT", ""),
		},
		Vendor: VendorConfig{
			Timeout:       getEnvAsDuration("VENDOR_TIMEOUT", 30*time.Second),
			RatePerSecond: getEnvAsFloat("VENDOR_RATE_PER_SECOND", 5),
			RateBurst:     getEnvAsInt("VENDOR_RATE_BURST", 10),
		},
		Notification: NotificationConfig{
			Email: EmailConfig{
				Enabled:      getEnvAsBool("NOTIFICATION_EMAIL_ENABLED", false),
				SMTPHost:     getEnv("NOTIFICATION_SMTP_HOST", "smtp.gmail.com"),
				SMTPPort:     getEnvAsInt("NOTIFICATION_SMTP_PORT", 587),
				SMTPUser:     getEnv("NOTIFICATION_SMTP_USER", ""),
				SMTPPassword: getEnv("NOTIFICATION_SMTP_PASSWORD", ""),
				FromAddress:  getEnv("NOTIFICATION_FROM_ADDRESS", "noreply@example.com"),
				FleetOpsList: getEnv("NOTIFICATION_FLEET_OPS_LIST", ""),
			},
			Slack: SlackConfig{
				Enabled:    getEnvAsBool("NOTIFICATION_SLACK_ENABLED", false),
				WebhookURL: getEnv("NOTIFICATION_SLACK_WEBHOOK_URL", ""),
			},
		},
		Workers: WorkerConfig{
			OverrideExpiryInterval: getEnvAsDuration("WORKER_OVERRIDE_EXPIRY_INTERVAL", 5*time.Minute),
			VendorSyncInterval:     getEnvAsDuration("WORKER_VENDOR_SYNC_INTERVAL", 1*time.Minute),
			VendorSyncBatchSize:    getEnvAsInt("WORKER_VENDOR_SYNC_BATCH", 50),
		},
		PhotoAPI: PhotoAPIConfig{
			BaseURL: getEnv("PHOTO_API_BASE_URL", "http://localhost:9090"),
			APIKey:  getEnv("PHOTO_API_KEY", ""),
			Timeout: getEnvAsDuration("PHOTO_API_TIMEOUT", 20*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Vendor.Timeout <= 0 {
		return fmt.Errorf("vendor timeout must be positive")
	}

	if c.App.Environment == "production" && c.Vault.Passphrase == "" {
		return fmt.Errorf("VAULT_PASSPHRASE must be set in production")
	}

	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
