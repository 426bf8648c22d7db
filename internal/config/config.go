package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	LogLevel    string

	SiteName       string
	SiteURL        string
	SiteAdminEmail string

	Mail MailConfig

	PollInterval  time.Duration
	PollerEnabled bool
}

type MailConfig struct {
	Transport     string // log, smtp or http
	Server        string
	Port          int
	UseTLS        bool
	Username      string
	Password      string
	DefaultSender string
	APIURL        string
	APIKey        string
	APIRatePerSec float64
	Workers       int
	QueueSize     int
	SendTimeout   time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", EnvDevelopment),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SiteName:       getEnv("SITE_NAME", "Puzzle Hunt"),
		SiteURL:        strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
		SiteAdminEmail: os.Getenv("SITE_ADMIN_EMAIL"),
		Mail: MailConfig{
			Transport:     strings.ToLower(getEnv("MAIL_TRANSPORT", "log")),
			Server:        os.Getenv("MAIL_SERVER"),
			Port:          getInt("MAIL_PORT", 587, &errs),
			UseTLS:        getBool("MAIL_USE_TLS", true, &errs),
			Username:      os.Getenv("MAIL_USERNAME"),
			Password:      os.Getenv("MAIL_PASSWORD"),
			DefaultSender: getEnv("MAIL_DEFAULT_SENDER", "Puzzle Hunt <noreply@localhost>"),
			APIURL:        os.Getenv("MAIL_API_URL"),
			APIKey:        os.Getenv("MAIL_API_KEY"),
			APIRatePerSec: getFloat("MAIL_API_RATE_PER_SEC", 0, &errs),
			Workers:       getInt("MAIL_WORKERS", 4, &errs),
			QueueSize:     getInt("MAIL_QUEUE_SIZE", 1024, &errs),
			SendTimeout:   getDuration("MAIL_SEND_TIMEOUT", 30*time.Second, &errs),
		},
		PollInterval:  getDuration("POLL_INTERVAL", 600*time.Second, &errs),
		PollerEnabled: getBool("POLLER_ENABLED", true, &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == EnvProduction }

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	var errs []error
	switch c.AppEnv {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be development, production or testing, got %q", c.AppEnv))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}

	switch c.Mail.Transport {
	case "log":
		if c.IsProduction() {
			errs = append(errs, errors.New("MAIL_TRANSPORT=log is not allowed in production"))
		}
	case "smtp":
		if c.Mail.Server == "" {
			errs = append(errs, errors.New("MAIL_SERVER is required for MAIL_TRANSPORT=smtp"))
		}
	case "http":
		if c.Mail.APIURL == "" {
			errs = append(errs, errors.New("MAIL_API_URL is required for MAIL_TRANSPORT=http"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_TRANSPORT %q", c.Mail.Transport))
	}
	return errors.Join(errs...)
}

// MissingRequired lists required variables that are unset, for health
// reporting.
func (c *Config) MissingRequired() []string {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	return missing
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64, errs *[]error) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func getBool(key string, fallback bool, errs *[]error) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

// getDuration accepts Go durations ("10m") or a bare number of seconds.
func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
