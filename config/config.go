package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Env Environment

	// Server configuration
	ServerHost         string
	ServerPort         string
	FrontendURL        string
	CORSAllowedOrigins []string

	// Database configuration
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	AutoMigrate bool

	// Redis configuration
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Sessions and OAuth
	JWTSecret          string
	SessionTTL         time.Duration
	SessionCookieName  string
	CookieSecure       bool
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Extraction webhook
	ExtractionWebhookURL string
	ExtractionStatusURL  string
	ExtractionRecipeURL  string
	ExtractionAPIKey     string
	ExtractionTimeout    time.Duration
	WebhookSigningSecret string
	PollInterval         time.Duration
	PollMaxAge           time.Duration

	// Storage
	S3BucketName    string
	AWSRegion       string
	S3Endpoint      string
	S3PublicBaseURL string

	// Limits
	SubmissionRateLimit int

	// Logging
	LogLevel  string
	LogFormat string
}

// secretKeys maps config keys to the Docker secret file that may override them
var secretKeys = map[string]string{
	"DB_USER":                "db_user",
	"DB_PASSWORD":            "db_password",
	"REDIS_PASSWORD":         "redis_password",
	"JWT_SECRET":             "jwt_secret",
	"GOOGLE_CLIENT_SECRET":   "google_client_secret",
	"EXTRACTION_API_KEY":     "extraction_api_key",
	"WEBHOOK_SIGNING_SECRET": "webhook_signing_secret",
}

// LoadConfig creates a new Config instance with values from environment variables or secrets
func LoadConfig() (*Config, error) {
	env := GetEnvironment()
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v, env)

	// Docker secrets win over plain environment variables
	for key, secret := range secretKeys {
		if value := readSecret(secret); value != "" {
			v.Set(key, value)
		}
	}

	cfg := &Config{
		Env:                  env,
		ServerHost:           v.GetString("SERVER_HOST"),
		ServerPort:           v.GetString("SERVER_PORT"),
		FrontendURL:          v.GetString("FRONTEND_URL"),
		CORSAllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		DBHost:               v.GetString("DB_HOST"),
		DBPort:               v.GetString("DB_PORT"),
		DBUser:               v.GetString("DB_USER"),
		DBPassword:           v.GetString("DB_PASSWORD"),
		DBName:               v.GetString("DB_NAME"),
		DBSSLMode:            v.GetString("DB_SSL_MODE"),
		AutoMigrate:          v.GetBool("AUTO_MIGRATE"),
		RedisURL:             v.GetString("REDIS_URL"),
		RedisHost:            v.GetString("REDIS_HOST"),
		RedisPort:            v.GetString("REDIS_PORT"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		SessionTTL:           v.GetDuration("SESSION_TTL"),
		SessionCookieName:    v.GetString("SESSION_COOKIE_NAME"),
		CookieSecure:         v.GetBool("COOKIE_SECURE"),
		GoogleClientID:       v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:    v.GetString("GOOGLE_REDIRECT_URL"),
		ExtractionWebhookURL: v.GetString("EXTRACTION_WEBHOOK_URL"),
		ExtractionStatusURL:  v.GetString("EXTRACTION_STATUS_URL"),
		ExtractionRecipeURL:  v.GetString("EXTRACTION_RECIPE_URL"),
		ExtractionAPIKey:     v.GetString("EXTRACTION_API_KEY"),
		ExtractionTimeout:    v.GetDuration("EXTRACTION_TIMEOUT"),
		WebhookSigningSecret: v.GetString("WEBHOOK_SIGNING_SECRET"),
		PollInterval:         v.GetDuration("POLL_INTERVAL"),
		PollMaxAge:           v.GetDuration("POLL_MAX_AGE"),
		S3BucketName:         v.GetString("S3_BUCKET_NAME"),
		AWSRegion:            v.GetString("AWS_REGION"),
		S3Endpoint:           v.GetString("S3_ENDPOINT"),
		S3PublicBaseURL:      v.GetString("S3_PUBLIC_BASE_URL"),
		SubmissionRateLimit:  v.GetInt("SUBMISSION_RATE_LIMIT"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
	}

	// Validate the configuration
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, env Environment) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "reelkitchen")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", 7*24*time.Hour)
	v.SetDefault("SESSION_COOKIE_NAME", "rk_session")
	v.SetDefault("COOKIE_SECURE", env == Production)
	v.SetDefault("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback")
	v.SetDefault("EXTRACTION_TIMEOUT", 60*time.Second)
	v.SetDefault("POLL_INTERVAL", 15*time.Second)
	v.SetDefault("POLL_MAX_AGE", 30*time.Minute)
	v.SetDefault("S3_BUCKET_NAME", "reelkitchen-recipe-media")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("SUBMISSION_RATE_LIMIT", 20)
	v.SetDefault("LOG_LEVEL", "info")
	if env == Production {
		v.SetDefault("LOG_FORMAT", "json")
	} else {
		v.SetDefault("LOG_FORMAT", "console")
		// Development conveniences; production must supply real values
		v.SetDefault("DB_PASSWORD", "postgres")
		v.SetDefault("JWT_SECRET", "dev-jwt-secret-change-me")
		v.SetDefault("WEBHOOK_SIGNING_SECRET", "dev-webhook-secret")
	}
}

// DSN returns the Postgres connection string, preferring DATABASE_URL
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// MigrationURL returns a URL-form DSN as golang-migrate expects
func (c *Config) MigrationURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// StatusURLFor derives the status endpoint when only the webhook URL is configured
func (c *Config) StatusURLFor() string {
	if c.ExtractionStatusURL != "" {
		return c.ExtractionStatusURL
	}
	return strings.TrimRight(c.ExtractionWebhookURL, "/") + "/status"
}

// RecipeURLFor derives the recipe lookup endpoint when only the webhook URL is configured
func (c *Config) RecipeURLFor() string {
	if c.ExtractionRecipeURL != "" {
		return c.ExtractionRecipeURL
	}
	return strings.TrimRight(c.ExtractionWebhookURL, "/") + "/recipes"
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	secretPath := filepath.Join(secretsDir, name)
	if data, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
