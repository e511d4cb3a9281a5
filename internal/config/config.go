package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/inboxtriage/internal/ai"
)

// Defaults for the triage run.
const (
	DefaultDatabasePath = "inboxtriage.db"
	DefaultProfilePath  = "triage.yaml"
	DefaultWindow       = 24 * time.Hour
	DefaultMaxMessages  = 100
	DefaultConcurrency  = 4
	DefaultAITimeout    = 60 * time.Second
)

// AIConfig configures the chat completion endpoint.
type AIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Config is the runtime configuration of inboxtriage.
type Config struct {
	// ProfilePath points at the YAML triage profile.
	ProfilePath string

	// DatabasePath is the SQLite file, or ":memory:".
	DatabasePath string

	AI AIConfig

	// Window is how far back a run fetches mail.
	Window time.Duration

	// MaxMessages caps the messages fetched per user and run.
	MaxMessages int64

	// Concurrency bounds how many users are processed in parallel.
	Concurrency int

	// ExportTasks pushes extracted tasks to Google Tasks after a run.
	ExportTasks bool

	// TaskListTitle names the Google Tasks list tasks are exported to.
	TaskListTitle string

	// Timezone is the IANA zone deadlines are resolved in.
	Timezone string

	Debug bool
}

// LoadDotEnv loads the given .env files, or ./.env when none are given.
// Variables already set in the environment win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables, using defaults for
// anything unset.
func FromEnv() Config {
	return Config{
		ProfilePath:  getEnvOrDefault("TRIAGE_PROFILE", DefaultProfilePath),
		DatabasePath: getEnvOrDefault("TRIAGE_DB", DefaultDatabasePath),
		AI: AIConfig{
			APIKey:     firstEnv("OPENROUTER_API_KEY", "OPENAI_API_KEY"),
			BaseURL:    getEnvOrDefault("OPENAI_BASE_URL", ai.DefaultBaseURL),
			Model:      getEnvOrDefault("TRIAGE_MODEL", ai.DefaultModel),
			Timeout:    getEnvDurationOrDefault("TRIAGE_AI_TIMEOUT", DefaultAITimeout),
			MaxRetries: getEnvIntOrDefault("TRIAGE_AI_MAX_RETRIES", 0),
		},
		Window:        getEnvDurationOrDefault("TRIAGE_WINDOW", DefaultWindow),
		MaxMessages:   int64(getEnvIntOrDefault("TRIAGE_MAX_MESSAGES", DefaultMaxMessages)),
		Concurrency:   getEnvIntOrDefault("TRIAGE_CONCURRENCY", DefaultConcurrency),
		ExportTasks:   getEnvBoolOrDefault("TRIAGE_EXPORT_TASKS", false),
		TaskListTitle: getEnvOrDefault("TRIAGE_TASK_LIST", ""),
		Timezone:      getEnvOrDefault("TRIAGE_TIMEZONE", ""),
		Debug:         getEnvBoolOrDefault("TRIAGE_DEBUG", false),
	}
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.MaxMessages <= 0 {
		return fmt.Errorf("max messages must be positive, got %d", c.MaxMessages)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.AI.Timeout < 0 {
		return fmt.Errorf("AI timeout must not be negative, got %s", c.AI.Timeout)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured deadline timezone, or time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
