package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	DB DBConfig

	JWTSecret  string
	AdminToken string

	// BankPath is a directory of per-jurisdiction JSON files seeded at
	// startup. Empty disables seeding.
	BankPath string

	// Correct training answers needed before numbered sets unlock. Zero
	// leaves sets open from the start.
	OnboardingUnlockThreshold int

	SessionSweepInterval time.Duration

	CORSOrigins []string

	// Answer verification for bank reports
	AnthropicAPIKey string
	ValidationModel string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	threshold, err := getEnvInt("ONBOARDING_UNLOCK_THRESHOLD", 20)
	if err != nil {
		return nil, err
	}
	if threshold < 0 {
		return nil, fmt.Errorf("config: ONBOARDING_UNLOCK_THRESHOLD must not be negative, got %d", threshold)
	}
	shutdown, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	sweep, err := getEnvDuration("SESSION_SWEEP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: shutdown,
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "permit_user"),
			Password: getEnv("DB_PASSWORD", "permit_password"),
			Name:     getEnv("DB_NAME", "permit_prep"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWTSecret:                 getEnv("JWT_SECRET", "dev-secret-change-me"),
		AdminToken:                os.Getenv("ADMIN_TOKEN"),
		BankPath:                  os.Getenv("BANK_PATH"),
		OnboardingUnlockThreshold: threshold,
		SessionSweepInterval:      sweep,
		CORSOrigins:               splitList(getEnv("CORS_ORIGINS", "*")),
		AnthropicAPIKey:           os.Getenv("ANTHROPIC_API_KEY"),
		ValidationModel:           os.Getenv("ANTHROPIC_VALIDATION_MODEL"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a valid duration: %w", key, v, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
