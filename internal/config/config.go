// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins string
	DBPath         string
	SessionTTL     time.Duration
	HistoryLimit   int
	TranscriptsOn  bool
	GoogleAPIKey   string
	GeminiModel    string
	TavilyAPIKey   string
	Email          EmailConfig
}

// EmailConfig holds the SMTP settings used to deliver OTP mail. When Host or
// User is empty, mail delivery is disabled and verification cannot complete.
type EmailConfig struct {
	Host        string
	Port        int
	User        string
	AppPassword string
}

// Enabled reports whether the SMTP sender has enough settings to dial.
func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.User != "" && e.AppPassword != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	ttlMinutes := getEnvInt("SESSION_TTL_MINUTES", 60)
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}

	historyLimit := getEnvInt("HISTORY_LIMIT", 20)
	if historyLimit <= 0 {
		historyLimit = 20
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		DBPath:         getEnv("DB_PATH", "./data/monuments.db"),
		SessionTTL:     time.Duration(ttlMinutes) * time.Minute,
		HistoryLimit:   historyLimit,
		TranscriptsOn:  getEnvBool("TRANSCRIPTS_ENABLED", true),
		GoogleAPIKey:   getEnv("GOOGLE_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", ""),
		TavilyAPIKey:   getEnv("TAVILY_API_KEY", ""),
		Email: EmailConfig{
			Host:        getEnv("EMAIL_SERVER", ""),
			Port:        getEnvInt("EMAIL_PORT", 587),
			User:        getEnv("EMAIL_USER", ""),
			AppPassword: getEnv("EMAIL_APP_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.TranscriptsOn && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when transcripts are enabled")
	}
	if c.Email.Port <= 0 || c.Email.Port > 65535 {
		return fmt.Errorf("EMAIL_PORT must be a valid TCP port")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
