package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/SAP-F-2025/form-exam-service/internal/events"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "gochannel", cfg.Events.Publisher)
	assert.True(t, cfg.Events.Enabled)
	assert.True(t, cfg.Sheets.Enabled)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.Casdoor.Enabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SHEETS_SYNC_ENABLED", "false")
	t.Setenv("CASDOOR_ENDPOINT", "https://auth.example.com")
	t.Setenv("CASDOOR_CERTIFICATE", "-----BEGIN CERTIFICATE-----")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.GetKafkaBrokers())
	assert.False(t, cfg.Sheets.Enabled)
	assert.True(t, cfg.Casdoor.Enabled())
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("port", "", "")
	flags.String("log-level", "", "")
	flags.String("events-publisher", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "7070", "--events-publisher", "mock"}))

	cfg, err := LoadConfig(flags)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "mock", cfg.Events.Publisher)
	// unset flags fall through to the environment
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestCreateEventBus(t *testing.T) {
	logger := discardLogger()

	t.Run("disabled", func(t *testing.T) {
		bus, err := (&EventConfig{Enabled: false, Publisher: "kafka"}).CreateEventBus(logger)
		require.NoError(t, err)
		assert.IsType(t, &events.MockEventPublisher{}, bus.Publisher)
		assert.Nil(t, bus.Subscriber)
		assert.NoError(t, bus.Close())
	})

	t.Run("gochannel", func(t *testing.T) {
		bus, err := (&EventConfig{Enabled: true, Publisher: "GoChannel", NotificationTopic: "t"}).CreateEventBus(logger)
		require.NoError(t, err)
		assert.IsType(t, &events.WatermillEventPublisher{}, bus.Publisher)
		assert.NotNil(t, bus.Subscriber)
		assert.NoError(t, bus.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := (&EventConfig{Enabled: true, Publisher: "carrier-pigeon"}).CreateEventBus(logger)
		assert.ErrorContains(t, err, "carrier-pigeon")
	})
}
