// Package config handles environment-based configuration loading and the
// logging setup derived from it.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const minUptimeRetentionDays = 366

// Config holds all environment-variable-driven settings (not hot-updatable).
type Config struct {
	// Process
	DatabaseURL string
	Port        int
	NodeEnv     string

	// Probing
	MonitoringInterval time.Duration
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryDelay         time.Duration

	// Upstream auth
	ServiceAPIKey     string
	ServiceAuthHeader string

	// Logging
	AlertOnFailure bool
	LogLevel       string
	LogFile        string

	// Auto-detection
	AutoDetectionEnabled bool
	MonitorAPIURL        string
	AutoDetectionTimeout time.Duration

	// SLA
	SLATarget float64

	// Registry sources
	EndpointsFile  string
	ServicesConfig string

	// Maintenance
	MaintenanceSchedule string
	UptimeRetentionDays int

	// Auth (empty means admin endpoints disabled)
	AdminToken string
}

// IsProduction reports whether the process runs with NODE_ENV=production.
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// Load reads environment variables and returns a validated Config.
// Returns an error aggregating every invalid or missing value.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// --- Process ---
	cfg.DatabaseURL = strings.TrimSpace(envStr("DATABASE_URL", ""))
	cfg.Port = envInt("PORT", 8080, &errs)
	cfg.NodeEnv = envStr("NODE_ENV", "development")

	// --- Probing ---
	cfg.MonitoringInterval = envMillis("MONITORING_INTERVAL", 60*time.Second, &errs)
	cfg.RequestTimeout = envMillis("REQUEST_TIMEOUT", 10*time.Second, &errs)
	cfg.MaxRetries = envInt("MAX_RETRIES", 3, &errs)
	cfg.RetryDelay = envMillis("RETRY_DELAY", time.Second, &errs)

	// --- Upstream auth ---
	cfg.ServiceAPIKey = envStr("SERVICE_API_KEY", "")
	cfg.ServiceAuthHeader = strings.TrimSpace(envStr("SERVICE_AUTH_HEADER", "x-api-key"))

	// --- Logging ---
	cfg.AlertOnFailure = envBool("ALERT_ON_FAILURE", true, &errs)
	cfg.LogLevel = envStr("LOG_LEVEL", "info")
	cfg.LogFile = envStr("LOG_FILE", "")

	// --- Auto-detection ---
	cfg.AutoDetectionEnabled = envBool("ENABLE_AUTO_INCIDENT_DETECTION", false, &errs)
	cfg.MonitorAPIURL = strings.TrimSpace(envStr("MONITOR_API_URL", ""))
	cfg.AutoDetectionTimeout = envMillis("AUTO_DETECTION_TIMEOUT", 5*time.Second, &errs)

	// --- SLA ---
	cfg.SLATarget = envFloat("SLA_TARGET", 99.9, &errs)

	// --- Registry sources ---
	cfg.EndpointsFile = envStr("ENDPOINTS_FILE", "")
	cfg.ServicesConfig = envStr("SERVICES_CONFIG", "")

	// --- Maintenance ---
	cfg.MaintenanceSchedule = envStr("MAINTENANCE_SCHEDULE", "30 2 * * *")
	cfg.UptimeRetentionDays = envInt("UPTIME_RETENTION_DAYS", minUptimeRetentionDays, &errs)

	// --- Auth ---
	cfg.AdminToken = envStr("ADMIN_TOKEN", "")

	// --- Validation ---
	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	validatePort("PORT", cfg.Port, &errs)

	if cfg.MonitoringInterval < 10*time.Second {
		errs = append(errs, fmt.Sprintf(
			"MONITORING_INTERVAL must be at least 10000 ms, got %d", cfg.MonitoringInterval.Milliseconds()))
	}
	if cfg.RequestTimeout < time.Second {
		errs = append(errs, fmt.Sprintf(
			"REQUEST_TIMEOUT must be at least 1000 ms, got %d", cfg.RequestTimeout.Milliseconds()))
	}
	if cfg.RequestTimeout >= cfg.MonitoringInterval {
		errs = append(errs, fmt.Sprintf(
			"REQUEST_TIMEOUT (%d ms) must be strictly less than MONITORING_INTERVAL (%d ms)",
			cfg.RequestTimeout.Milliseconds(), cfg.MonitoringInterval.Milliseconds()))
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("MAX_RETRIES must not be negative, got %d", cfg.MaxRetries))
	}
	if cfg.RetryDelay < 0 {
		errs = append(errs, fmt.Sprintf("RETRY_DELAY must not be negative, got %d", cfg.RetryDelay.Milliseconds()))
	}

	if cfg.ServiceAuthHeader == "" {
		errs = append(errs, "SERVICE_AUTH_HEADER must not be empty")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: invalid level %q", cfg.LogLevel))
	}

	if cfg.AutoDetectionEnabled && cfg.MonitorAPIURL == "" {
		errs = append(errs, "MONITOR_API_URL is required when ENABLE_AUTO_INCIDENT_DETECTION is set")
	}
	if cfg.MonitorAPIURL != "" {
		if err := validateHTTPURL(cfg.MonitorAPIURL); err != nil {
			errs = append(errs, fmt.Sprintf("MONITOR_API_URL: %v", err))
		}
	}
	if cfg.AutoDetectionTimeout <= 0 {
		errs = append(errs, "AUTO_DETECTION_TIMEOUT must be positive")
	}

	if cfg.SLATarget <= 0 || cfg.SLATarget > 100 {
		errs = append(errs, fmt.Sprintf("SLA_TARGET must be in (0, 100], got %v", cfg.SLATarget))
	}

	if _, err := cron.ParseStandard(cfg.MaintenanceSchedule); err != nil {
		errs = append(errs, fmt.Sprintf(
			"MAINTENANCE_SCHEDULE: invalid cron expression %q: %v", cfg.MaintenanceSchedule, err))
	}
	if cfg.UptimeRetentionDays < minUptimeRetentionDays {
		errs = append(errs, fmt.Sprintf(
			"UPTIME_RETENTION_DAYS must be at least %d, got %d", minUptimeRetentionDays, cfg.UptimeRetentionDays))
	}

	if IsWeakToken(cfg.AdminToken) {
		errs = append(errs, "ADMIN_TOKEN is too weak; use a long random value or leave it empty to disable admin endpoints")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

// envMillis reads an integer millisecond count, matching how the
// surrounding deployment tooling expresses intervals.
func envMillis(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid millisecond count %q", key, v))
		return defaultVal
	}
	return time.Duration(n) * time.Millisecond
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid number %q", key, v))
		return defaultVal
	}
	return f
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
