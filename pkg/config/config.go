package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults mirror the platform's operational envelope.
const (
	DefaultHTTPAddr            = ":8080"
	DefaultWorkerConcurrency   = 4
	DefaultTaskTimeLimit       = 300 * time.Second
	DefaultToolTimeout         = 60 * time.Second
	DefaultMaxToolCallsPerTurn = 5
	DefaultMaxToolIterations   = 5
	DefaultSchedulerInterval   = time.Minute
	DefaultRateLimit           = 1000
)

// Config is the single immutable configuration value for the process,
// built from the environment at startup.
type Config struct {
	AppName     string
	Debug       bool
	LogLevel    string
	CORSOrigins []string

	HTTPAddr    string
	DatabaseURL string
	RedisURL    string

	JWTSecret     string
	EncryptionKey string

	// A2ABaseURL is the externally reachable base used when building
	// agent-card URLs.
	A2ABaseURL string

	WorkerConcurrency int
	TaskTimeLimit     time.Duration
	SchedulerInterval time.Duration

	ToolTimeout         time.Duration
	MaxToolCallsPerTurn int
	MaxToolIterations   int
}

// Load reads .env files and the process environment into a Config.
func Load() (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		AppName:             getEnv("APP_NAME", "aviary"),
		Debug:               getEnvBool("DEBUG", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "*")),
		HTTPAddr:            getEnv("HTTP_ADDR", DefaultHTTPAddr),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		EncryptionKey:       getEnv("ENCRYPTION_KEY", ""),
		A2ABaseURL:          getEnv("A2A_BASE_URL", "http://localhost:8080"),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", DefaultWorkerConcurrency),
		TaskTimeLimit:       getEnvDuration("TASK_TIME_LIMIT", DefaultTaskTimeLimit),
		SchedulerInterval:   getEnvDuration("SCHEDULER_INTERVAL", DefaultSchedulerInterval),
		ToolTimeout:         getEnvDuration("TOOL_TIMEOUT", DefaultToolTimeout),
		MaxToolCallsPerTurn: getEnvInt("MAX_TOOL_CALLS_PER_TURN", DefaultMaxToolCallsPerTurn),
		MaxToolIterations:   getEnvInt("MAX_TOOL_ITERATIONS", DefaultMaxToolIterations),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.MaxToolCallsPerTurn < 1 {
		return fmt.Errorf("max tool calls per turn must be at least 1, got %d", c.MaxToolCallsPerTurn)
	}
	if c.MaxToolIterations < 1 {
		return fmt.Errorf("max tool iterations must be at least 1, got %d", c.MaxToolIterations)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
