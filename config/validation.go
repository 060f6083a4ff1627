package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// requiredInProduction lists settings that have no safe default outside development
var requiredInProduction = []struct {
	field string
	value func(*Config) string
}{
	{"JWT_SECRET", func(c *Config) string { return c.JWTSecret }},
	{"DB_PASSWORD", func(c *Config) string {
		if c.DatabaseURL != "" {
			return c.DatabaseURL
		}
		return c.DBPassword
	}},
	{"GOOGLE_CLIENT_ID", func(c *Config) string { return c.GoogleClientID }},
	{"GOOGLE_CLIENT_SECRET", func(c *Config) string { return c.GoogleClientSecret }},
	{"EXTRACTION_WEBHOOK_URL", func(c *Config) string { return c.ExtractionWebhookURL }},
	{"WEBHOOK_SIGNING_SECRET", func(c *Config) string { return c.WebhookSigningSecret }},
}

// ValidateConfig checks if the configuration meets the requirements for its environment
func ValidateConfig(cfg *Config) error {
	var errs []error

	if cfg.Env.IsProduction() {
		for _, req := range requiredInProduction {
			if req.value(cfg) == "" {
				errs = append(errs, ValidationError{Field: req.field, Message: "is required in production"})
			}
		}
		if len(cfg.JWTSecret) > 0 && len(cfg.JWTSecret) < 32 {
			errs = append(errs, ValidationError{Field: "JWT_SECRET", Message: "must be at least 32 characters"})
		}
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, ValidationError{Field: "JWT_SECRET", Message: "must not be empty"})
	}
	if cfg.ExtractionWebhookURL != "" {
		if u, err := url.Parse(cfg.ExtractionWebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: "EXTRACTION_WEBHOOK_URL", Message: "must be an absolute URL"})
		}
	}
	if cfg.SessionTTL <= 0 {
		errs = append(errs, ValidationError{Field: "SESSION_TTL", Message: "must be positive"})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{Field: "POLL_INTERVAL", Message: "must be positive"})
	}
	if cfg.SubmissionRateLimit < 0 {
		errs = append(errs, ValidationError{Field: "SUBMISSION_RATE_LIMIT", Message: "must not be negative"})
	}

	return errors.Join(errs...)
}
