package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"roomchat/pkg/logger"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Log       LogConfig
	Mail      MailConfig
	JoinLimit JoinLimitConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// AllowedOrigins come from CLIENT_URL. The first one is the public
	// client base used in invitation links.
	AllowedOrigins []string
}

func (s ServerConfig) ClientBaseURL() string {
	if len(s.AllowedOrigins) == 0 {
		return defaultClientURL
	}
	return strings.TrimRight(s.AllowedOrigins[0], "/")
}

type DatabaseConfig struct {
	// URL is empty when the in-memory directory should be used.
	URL string
}

type JWTConfig struct {
	Secret    []byte
	Issuer    string
	ExpiresIn time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type MailDriver string

const (
	MailDriverLog    MailDriver = "log"
	MailDriverResend MailDriver = "resend"
	MailDriverQueue  MailDriver = "queue"
)

type MailConfig struct {
	Driver            MailDriver
	From              string
	ResendAPIKey      string
	RedisURL          string
	WorkerConcurrency int
}

type JoinLimitConfig struct {
	Burst    int
	Interval time.Duration
}

const defaultClientURL = "http://localhost:5173"

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded: %v", err)
	}

	l := &loader{}
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("PORT", ":8080"),
			ReadTimeout:     l.duration("READ_TIMEOUT", "15s"),
			WriteTimeout:    l.duration("WRITE_TIMEOUT", "15s"),
			ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", "10s"),
			AllowedOrigins:  splitList(getEnvOrDefault("CLIENT_URL", defaultClientURL)),
		},
		Database: DatabaseConfig{
			URL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		},
		JWT: JWTConfig{
			Secret:    []byte(l.required("JWT_SECRET")),
			Issuer:    os.Getenv("JWT_ISSUER"),
			ExpiresIn: l.duration("JWT_EXPIRES_IN", "24h"),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", logger.FormatConsole),
		},
		Mail: MailConfig{
			Driver:            MailDriver(strings.ToLower(getEnvOrDefault("MAIL_DRIVER", string(MailDriverLog)))),
			From:              getEnvOrDefault("MAIL_FROM", "Rooms <onboarding@resend.dev>"),
			ResendAPIKey:      os.Getenv("RESEND_API_KEY"),
			RedisURL:          os.Getenv("REDIS_URL"),
			WorkerConcurrency: l.integer("MAIL_WORKER_CONCURRENCY", 5),
		},
		JoinLimit: JoinLimitConfig{
			Burst:    l.integer("JOIN_ATTEMPT_BURST", 5),
			Interval: l.duration("JOIN_ATTEMPT_INTERVAL", "12s"),
		},
	}

	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverResend:
		if c.Mail.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when MAIL_DRIVER=%s", c.Mail.Driver)
		}
	case MailDriverQueue:
		if c.Mail.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when MAIL_DRIVER=%s", c.Mail.Driver)
		}
		if c.Mail.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when MAIL_DRIVER=%s", c.Mail.Driver)
		}
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.Mail.Driver)
	}
	if c.JoinLimit.Burst < 1 {
		return fmt.Errorf("JOIN_ATTEMPT_BURST must be at least 1")
	}
	if c.Mail.WorkerConcurrency < 1 {
		return fmt.Errorf("MAIL_WORKER_CONCURRENCY must be at least 1")
	}
	return nil
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *loader) required(key string) string {
	value := os.Getenv(key)
	if value == "" {
		l.fail(fmt.Errorf("%s environment variable is required", key))
	}
	return value
}

func (l *loader) duration(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		l.fail(fmt.Errorf("invalid duration for %s: %w", key, err))
	}
	return duration
}

func (l *loader) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		l.fail(fmt.Errorf("invalid integer for %s: %w", key, err))
	}
	return intValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
