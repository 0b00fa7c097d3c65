package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rongwang/propvera-server/internal/utils"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Admin    AdminConfig
	Billing  BillingConfig
	Jobs     JobsConfig
	Email    EmailConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Driver   string // "postgres" or "memory"
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
	SSLMode  string
}

// AuthConfig holds the admin token configuration
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
}

// AdminConfig holds the super-admin credentials. Empty values mean the
// admin console is not configured and every login fails closed.
type AdminConfig struct {
	ID           string
	PasswordHash string // bcrypt
	SecurityKey  string
}

// Configured reports whether all admin secrets are present
func (c AdminConfig) Configured() bool {
	return c.ID != "" && c.PasswordHash != "" && c.SecurityKey != ""
}

// BillingConfig holds the metering constants
type BillingConfig struct {
	UnitDailyRate int64 // currency minor units per unit per day
	GracePeriod   time.Duration
	TimeZone      string
}

// LoadLocation resolves the billing time zone; an empty name is UTC
func (c BillingConfig) LoadLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid BILLING_TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Location resolves the billing time zone, logging and falling back to UTC
// when the name is unknown
func (c BillingConfig) Location() *time.Location {
	loc, err := c.LoadLocation()
	if err != nil {
		utils.Logger.WithError(err).Warn("Falling back to UTC for billing days")
		return time.UTC
	}
	return loc
}

// JobsConfig holds scheduling settings for the background jobs
type JobsConfig struct {
	Enabled         bool
	DailySchedule   string
	MonthlySchedule string
	Concurrency     int
}

// EmailConfig holds the outbound email settings
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	SandboxMode    bool
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Username: getEnv("DB_USERNAME", "postgres"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "propvera"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenDuration: getEnvAsDuration("ADMIN_TOKEN_TTL", 2*time.Hour),
		},
		Admin: AdminConfig{
			ID:           getEnv("ADMIN_ID", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			SecurityKey:  getEnv("ADMIN_SECURITY_KEY", ""),
		},
		Billing: BillingConfig{
			UnitDailyRate: int64(getEnvAsInt("BILLING_UNIT_DAILY_RATE", 2)),
			GracePeriod:   getEnvAsDuration("BILLING_GRACE_PERIOD", 7*24*time.Hour),
			TimeZone:      getEnv("BILLING_TIMEZONE", "Asia/Kolkata"),
		},
		Jobs: JobsConfig{
			Enabled:         getEnvAsBool("JOBS_ENABLED", true),
			DailySchedule:   getEnv("DAILY_USAGE_SCHEDULE", "5 0 * * *"),
			MonthlySchedule: getEnv("MONTHLY_BILLING_SCHEDULE", "0 0 1 * *"),
			Concurrency:     getEnvAsInt("JOB_CONCURRENCY", 4),
		},
		Email: EmailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("EMAIL_FROM", "no-reply@propvera.app"),
			FromName:       getEnv("EMAIL_FROM_NAME", "Propvera Team"),
			SandboxMode:    getEnvAsBool("SENDGRID_SANDBOX_MODE", false),
		},
	}
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
