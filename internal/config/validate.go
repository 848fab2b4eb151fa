package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Signing secret has no fallback value.
	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}
	if c.JWT.Expiry <= 0 {
		errs = append(errs, "JWT_EXPIRY must be positive")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Throttle.Backend == "redis" && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Quota ceilings
	if c.Quota.SummaryMonthly < 1 {
		errs = append(errs, "QUOTA_SUMMARY_MONTHLY must be positive")
	}
	if c.Quota.TranslationMonthly < 1 {
		errs = append(errs, "QUOTA_TRANSLATION_MONTHLY must be positive")
	}
	if c.Quota.Daily < 1 {
		errs = append(errs, "QUOTA_DAILY must be positive")
	}
	if _, err := time.LoadLocation(c.Quota.TimeZone); err != nil {
		errs = append(errs, fmt.Sprintf("QUOTA_TIMEZONE %q is not a known location", c.Quota.TimeZone))
	}

	// Throttle
	switch c.Throttle.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("THROTTLE_BACKEND must be memory or redis, got %q", c.Throttle.Backend))
	}
	if c.Throttle.Points < 1 {
		errs = append(errs, "THROTTLE_POINTS must be positive")
	}
	if c.Throttle.Duration <= 0 {
		errs = append(errs, "THROTTLE_DURATION must be positive")
	}

	// Text service: warn only, handlers answer 503 without it
	if c.Text.URL == "" {
		slog.Warn("TEXT_SERVICE_URL is empty, summary and translation routes will answer 503")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
