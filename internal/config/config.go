package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the relay.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// Transport selects the delivery strategy: "push" (Cloud API JSON in,
	// Graph API send out) or "twiml" (form pair in, inline XML reply out).
	Transport string

	VerifyToken string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	CompletionTimeout time.Duration

	MetaAccessToken   string
	MetaPhoneNumberID string
	MetaBaseURL       string

	PersonaFile string

	// Threshold overrides. Negative values defer to the persona policy.
	MaxAssistantTurns     int
	HandoffTotalTurns     int
	HandoffAssistantTurns int
	// HandoffMarker overrides the persona marker when non-empty.
	HandoffMarker string

	SheetsCredentialsFile string
	SheetsSpreadsheetID   string
	SheetsWorksheet       string
	DatabaseURL           string

	// ConversationTTL enables idle transcript eviction when positive.
	ConversationTTL time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "whatsline"),
		Transport:             strings.ToLower(envOrDefault("TRANSPORT", "push")),
		VerifyToken:           strings.TrimSpace(os.Getenv("WHATSAPP_VERIFY_TOKEN")),
		OpenAIAPIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:           envOrDefault("OPENAI_MODEL", "gpt-4"),
		OpenAIBaseURL:         envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		MetaAccessToken:       strings.TrimSpace(os.Getenv("META_ACCESS_TOKEN")),
		MetaPhoneNumberID:     strings.TrimSpace(os.Getenv("WHATSAPP_PHONE_NUMBER_ID")),
		MetaBaseURL:           envOrDefault("META_BASE_URL", "https://graph.facebook.com/v22.0"),
		PersonaFile:           strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		HandoffMarker:         strings.TrimSpace(os.Getenv("HANDOFF_MARKER")),
		SheetsCredentialsFile: strings.TrimSpace(os.Getenv("SHEETS_CREDENTIALS_FILE")),
		SheetsSpreadsheetID:   strings.TrimSpace(os.Getenv("SHEETS_SPREADSHEET_ID")),
		SheetsWorksheet:       envOrDefault("SHEETS_WORKSHEET", "Sheet1"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ShutdownTimeout:       15 * time.Second,
		CompletionTimeout:     60 * time.Second,
	}

	// PORT keeps compatibility with the original deployment environment.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.BindAddr = ":" + port
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationTTL, err = durationFromEnv("APP_CONVERSATION_TTL", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAssistantTurns, err = intFromEnv("MAX_ASSISTANT_TURNS", -1)
	if err != nil {
		return Config{}, err
	}
	cfg.HandoffTotalTurns, err = intFromEnv("HANDOFF_TOTAL_TURNS", -1)
	if err != nil {
		return Config{}, err
	}
	cfg.HandoffAssistantTurns, err = intFromEnv("HANDOFF_ASSISTANT_TURNS", -1)
	if err != nil {
		return Config{}, err
	}

	switch cfg.Transport {
	case "push", "twiml":
	default:
		return Config{}, fmt.Errorf("invalid TRANSPORT: %q (expected push|twiml)", cfg.Transport)
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.SheetsCredentialsFile != "" && cfg.SheetsSpreadsheetID == "" {
		return Config{}, fmt.Errorf("SHEETS_SPREADSHEET_ID is required when SHEETS_CREDENTIALS_FILE is set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return d, nil
}
