package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the interviewer service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AppName          string

	AllowAnyOrigin     bool
	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string

	LiveProvider       string
	AgentModel         string
	AudioInputRate     int
	QueueBuffer        int
	LiveConnectRetries int

	GoogleAPIKey          string
	GoogleUseVertexAI     bool
	GoogleCloudProject    string
	GoogleCloudLocation   string
	GoogleCredentialsFile string

	DatabaseURL         string
	TranscriptRedactPII bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "interviewer"),
		AppName:          envOrDefault("APP_NAME", "AI Interviewer"),
		// Local demo default: the browser UI may be served from anywhere.
		AllowAnyOrigin:      true,
		CORSAllowedOrigins:  listFromEnv("APP_CORS_ALLOWED_ORIGINS"),
		LogLevel:            strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		LiveProvider:        strings.ToLower(envOrDefault("LIVE_PROVIDER", "auto")),
		AgentModel:          envOrDefault("AGENT_MODEL", "gemini-2.0-flash-exp"),
		AudioInputRate:      16000,
		QueueBuffer:         64,
		LiveConnectRetries:  3,
		GoogleAPIKey:        firstNonEmpty(stringsTrimSpace("GOOGLE_API_KEY"), stringsTrimSpace("GEMINI_API_KEY")),
		GoogleCloudProject:  stringsTrimSpace("GOOGLE_CLOUD_PROJECT"),
		GoogleCloudLocation: envOrDefault("GOOGLE_CLOUD_LOCATION", "us-central1"),
		// The original deployment shipped a service account file next to the binary.
		GoogleCredentialsFile: envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", "creds.json"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		TranscriptRedactPII:   true,
		ShutdownTimeout:       15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_CORS_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.GoogleUseVertexAI, err = boolFromEnv("GOOGLE_GENAI_USE_VERTEXAI", cfg.GoogleUseVertexAI)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscriptRedactPII, err = boolFromEnv("TRANSCRIPT_REDACT_PII", cfg.TranscriptRedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioInputRate, err = intFromEnv("LIVE_AUDIO_INPUT_RATE", cfg.AudioInputRate)
	if err != nil {
		return Config{}, err
	}
	cfg.QueueBuffer, err = intFromEnv("LIVE_QUEUE_BUFFER", cfg.QueueBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.LiveConnectRetries, err = intFromEnv("LIVE_CONNECT_ATTEMPTS", cfg.LiveConnectRetries)
	if err != nil {
		return Config{}, err
	}

	switch cfg.LiveProvider {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("LIVE_PROVIDER must be one of auto|gemini|mock, got %q", cfg.LiveProvider)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if cfg.AudioInputRate <= 0 {
		return Config{}, fmt.Errorf("LIVE_AUDIO_INPUT_RATE must be positive")
	}
	if cfg.QueueBuffer <= 0 {
		return Config{}, fmt.Errorf("LIVE_QUEUE_BUFFER must be positive")
	}
	if cfg.LiveConnectRetries <= 0 {
		return Config{}, fmt.Errorf("LIVE_CONNECT_ATTEMPTS must be positive")
	}
	if cfg.GoogleUseVertexAI && cfg.GoogleCloudProject == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when GOOGLE_GENAI_USE_VERTEXAI is set")
	}

	return cfg, nil
}

// HasGoogleCredentials reports whether a Gemini client can plausibly be built
// from this configuration.
func (c Config) HasGoogleCredentials() bool {
	if c.GoogleAPIKey != "" {
		return true
	}
	if !c.GoogleUseVertexAI {
		return false
	}
	_, err := os.Stat(c.GoogleCredentialsFile)
	return err == nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func listFromEnv(key string) []string {
	raw := stringsTrimSpace(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
