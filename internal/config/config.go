// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret     = "your-secret-key-change-in-production"
	defaultAdminPassword = "Admin12345"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Email       EmailConfig
	Workflow    WorkflowConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	CORSOrigins  []string
}

type DatabaseConfig struct {
	Driver        string // postgres or sqlite
	Host          string
	Port          string
	User          string
	Password      string
	Database      string
	SSLMode       string
	SQLitePath    string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   int
	LogLevel      string
	AutoMigrate   bool
	SeedData      bool
	AdminPassword string // password of the admin account created by the seeder
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  int // in hours
	RefreshTokenTTL int // in hours
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	PresignTTL      time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type WorkflowConfig struct {
	NumberPrefix        string
	NumberMaxAttempts   int
	DocumentPolicy      string // enforce or warn
	SignatureTTL        time.Duration
	ExpirySweepInterval time.Duration
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			CORSOrigins:  getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Driver:        getEnv("DB_DRIVER", "postgres"),
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", ""),
			Database:      getEnv("DB_NAME", "solicitudes"),
			SSLMode:       getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:    getEnv("DB_SQLITE_PATH", "solicitudes.db"),
			MaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:      getEnv("DB_LOG_LEVEL", "silent"),
			AutoMigrate:   getEnvAsBool("DB_AUTO_MIGRATE", true),
			SeedData:      getEnvAsBool("DB_SEED_DATA", true),
			AdminPassword: getEnv("SEED_ADMIN_PASSWORD", defaultAdminPassword),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenTTL:  getEnvAsInt("JWT_ACCESS_TTL", 24),   // 24 hours
			RefreshTokenTTL: getEnvAsInt("JWT_REFRESH_TTL", 168), // 7 days
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "solicitudes-documentos"),
			PresignTTL:      getEnvAsDuration("AWS_PRESIGN_TTL", 15*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "no-responder@cooperativa.local"),
			FromName:     getEnv("FROM_NAME", "Crédito Cooperativo"),
		},
		Workflow: WorkflowConfig{
			NumberPrefix:        getEnv("WORKFLOW_NUMBER_PREFIX", "SOL"),
			NumberMaxAttempts:   getEnvAsInt("WORKFLOW_NUMBER_MAX_ATTEMPTS", 50),
			DocumentPolicy:      getEnv("WORKFLOW_DOCUMENT_POLICY", "enforce"),
			SignatureTTL:        getEnvAsDuration("WORKFLOW_SIGNATURE_TTL", 72*time.Hour),
			ExpirySweepInterval: getEnvAsDuration("WORKFLOW_EXPIRY_SWEEP_INTERVAL", 5*time.Minute),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "es"),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:5173"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == defaultJWTSecret && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Database.SeedData && c.Database.AdminPassword == defaultAdminPassword && c.Environment == "production" {
		return fmt.Errorf("seed admin password must be changed in production")
	}

	if c.Workflow.DocumentPolicy != "enforce" && c.Workflow.DocumentPolicy != "warn" {
		return fmt.Errorf("unsupported document policy %q", c.Workflow.DocumentPolicy)
	}

	if c.Workflow.NumberMaxAttempts <= 0 {
		return fmt.Errorf("number generator retry budget must be positive")
	}

	if c.Workflow.SignatureTTL <= 0 {
		return fmt.Errorf("signature TTL must be positive")
	}

	return nil
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
