package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	MetricsToken       string

	// Identity tokens
	FirebaseProjectID      string
	FirebaseServiceAccount string
	FirebaseJWKSURL        string
	DevAuthSecret          string

	// Language models
	LLMProvider           string
	LLMFallbackProvider   string
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAITranscribeModel string
	BedrockModelID        string
	AWSRegion             string
	GeminiAPIKey          string
	GeminiModel           string
	ElevenLabsAPIKey      string
	VoiceLLMExtraction    bool
	VoiceLLMMaxTokens     int
	VoiceLLMTemperature   float64

	// Scheduling and voice behaviour
	PracticeTimezone          string
	DefaultAppointmentMinutes int
	RecurrenceHorizonMonths   int
	VoicePendingTTL           time.Duration
	VoiceMatchThreshold       float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ORIGIN"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		MetricsToken:       getEnv("METRICS_TOKEN", ""),

		FirebaseProjectID:      getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccount: getEnv("FIREBASE_SERVICE_ACCOUNT", ""),
		FirebaseJWKSURL:        getEnv("FIREBASE_JWKS_URL", ""),
		DevAuthSecret:          getEnv("DEV_AUTH_SECRET", ""),

		LLMProvider:           strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider:   strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITranscribeModel: getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ElevenLabsAPIKey:      getEnv("ELEVENLABS_API_KEY", ""),
		VoiceLLMExtraction:    getEnvAsBool("VOICE_LLM_EXTRACTION", true),
		VoiceLLMMaxTokens:     getEnvAsInt("VOICE_LLM_MAX_TOKENS", 400),
		VoiceLLMTemperature:   getEnvAsFloat("VOICE_LLM_TEMPERATURE", 0.2),

		PracticeTimezone:          getEnv("PRACTICE_TIMEZONE", "America/New_York"),
		DefaultAppointmentMinutes: getEnvAsInt("DEFAULT_APPOINTMENT_MINUTES", 60),
		RecurrenceHorizonMonths:   getEnvAsInt("RECURRENCE_HORIZON_MONTHS", 6),
		VoicePendingTTL:           getEnvAsDuration("VOICE_PENDING_TTL", 5*time.Minute),
		VoiceMatchThreshold:       getEnvAsFloat("VOICE_MATCH_THRESHOLD", 0.72),
	}
}

// FirebaseProject returns the project whose ID tokens the API accepts. An explicit
// FIREBASE_PROJECT_ID wins over the project_id embedded in the service account JSON.
func (c *Config) FirebaseProject() string {
	if c == nil {
		return ""
	}
	if id := strings.TrimSpace(c.FirebaseProjectID); id != "" {
		return id
	}
	raw := strings.TrimSpace(c.FirebaseServiceAccount)
	if raw == "" {
		return ""
	}
	var account struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return ""
	}
	return strings.TrimSpace(account.ProjectID)
}

// TTSConfigured reports whether an ElevenLabs key is present. Speech playback is
// handled by the browser; the flag is surfaced on /health for the UI.
func (c *Config) TTSConfigured() bool {
	return c != nil && strings.TrimSpace(c.ElevenLabsAPIKey) != ""
}

// Location resolves the practice timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.PracticeTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.PracticeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
