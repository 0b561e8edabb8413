package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:       "9000",
		JWTSecret:      "secret",
		WordPressURL:   "https://shop.example",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		EscrowBackend:  EscrowMemory,
		EscrowTTL:      48 * time.Hour,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ESCROW_TTL", "72h")

	cfg, _, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, cfg.EscrowTTL)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "eur", cfg.StripeCurrency)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers())
}

func TestValidate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWTSecret = ""
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")
	})

	t.Run("postgres escrow without dsn", func(t *testing.T) {
		cfg := validConfig()
		cfg.EscrowBackend = EscrowPostgres
		assert.ErrorContains(t, cfg.Validate(), "APP_DSN")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.EscrowBackend = "redis"
		assert.ErrorContains(t, cfg.Validate(), "redis")
	})

	t.Run("ttl shorter than a session", func(t *testing.T) {
		cfg := validConfig()
		cfg.EscrowTTL = time.Hour
		assert.ErrorContains(t, cfg.Validate(), "ESCROW_TTL")
	})
}

func TestAddr(t *testing.T) {
	assert.Equal(t, ":9000", validConfig().Addr())
	assert.Empty(t, (&Config{}).KafkaBrokers())
}
