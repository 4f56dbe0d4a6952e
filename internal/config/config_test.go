package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.BindAddr)
	assert.Equal(t, "AI Interviewer", cfg.AppName)
	assert.Equal(t, "auto", cfg.LiveProvider)
	assert.Equal(t, "gemini-2.0-flash-exp", cfg.AgentModel)
	assert.True(t, cfg.AllowAnyOrigin)
	assert.True(t, cfg.TranscriptRedactPII)
	assert.Equal(t, 16000, cfg.AudioInputRate)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("LIVE_PROVIDER", "MOCK")
	t.Setenv("APP_CORS_ALLOW_ANY_ORIGIN", "off")
	t.Setenv("APP_CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("GEMINI_API_KEY", "k-123")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9191", cfg.BindAddr)
	assert.Equal(t, "mock", cfg.LiveProvider)
	assert.False(t, cfg.AllowAnyOrigin)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "k-123", cfg.GoogleAPIKey)
	assert.True(t, cfg.HasGoogleCredentials())
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LIVE_PROVIDER":             "openai",
		"LOG_FORMAT":                "xml",
		"LIVE_QUEUE_BUFFER":         "0",
		"LIVE_AUDIO_INPUT_RATE":     "abc",
		"APP_CORS_ALLOW_ANY_ORIGIN": "maybe",
		"GOOGLE_GENAI_USE_VERTEXAI": "true",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFilePreservesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n" +
		"export INTERVIEWER_TEST_A=\"alpha\"\n" +
		"INTERVIEWER_TEST_B='beta'\n" +
		"not a pair\n" +
		"INTERVIEWER_TEST_C=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("INTERVIEWER_TEST_C", "from-env")
	// t.Setenv registers cleanup; unset the others so LoadEnvFile sets them.
	t.Setenv("INTERVIEWER_TEST_A", "")
	t.Setenv("INTERVIEWER_TEST_B", "")
	require.NoError(t, os.Unsetenv("INTERVIEWER_TEST_A"))
	require.NoError(t, os.Unsetenv("INTERVIEWER_TEST_B"))

	require.NoError(t, LoadEnvFile(path))

	assert.Equal(t, "alpha", os.Getenv("INTERVIEWER_TEST_A"))
	assert.Equal(t, "beta", os.Getenv("INTERVIEWER_TEST_B"))
	assert.Equal(t, "from-env", os.Getenv("INTERVIEWER_TEST_C"))
}

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_NAME",
		"APP_CORS_ALLOW_ANY_ORIGIN",
		"APP_CORS_ALLOWED_ORIGINS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"LIVE_PROVIDER",
		"AGENT_MODEL",
		"LIVE_AUDIO_INPUT_RATE",
		"LIVE_QUEUE_BUFFER",
		"LIVE_CONNECT_ATTEMPTS",
		"GOOGLE_API_KEY",
		"GEMINI_API_KEY",
		"GOOGLE_GENAI_USE_VERTEXAI",
		"GOOGLE_CLOUD_PROJECT",
		"GOOGLE_CLOUD_LOCATION",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"DATABASE_URL",
		"TRANSCRIPT_REDACT_PII",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
