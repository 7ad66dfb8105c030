package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(t.TempDir())

	req.NoError(err)
	req.Equal("8080", cfg.Port)
	req.Equal("sqlite", cfg.DatabaseDriver)
	req.Equal("local", cfg.Broker)
	req.Equal(10*time.Second, cfg.RateWindow)
	req.Equal(256, cfg.SubscriberBuffer)
	req.False(cfg.UsesRedis())
	req.False(cfg.RateLimited())
}

func TestLoad_EnvFileAndEnvironment(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	env := "PORT=9090\nBROKER=redis\nREDIS_ADDR=localhost:6379\nRATE_WINDOW=1m\n"
	req.NoError(os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	// Given the environment overrides the file
	t.Setenv("PORT", "7070")

	cfg, err := Load(dir)

	req.NoError(err)
	req.Equal("7070", cfg.Port)
	req.Equal("redis", cfg.Broker)
	req.Equal(time.Minute, cfg.RateWindow)
	req.True(cfg.RateLimited())
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"redis broker without address":   {"BROKER": "redis"},
		"redis presence without address": {"PRESENCE_BACKEND": "redis"},
		"unknown driver":                 {"DATABASE_DRIVER": "mysql"},
		"zero buffer":                    {"SUBSCRIBER_BUFFER": "0"},
		"unknown strategy":               {"RATE_STRATEGY": "leaky_bucket"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for key, value := range env {
				t.Setenv(key, value)
			}
			_, err := Load(t.TempDir())
			require.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoadClient(t *testing.T) {
	req := require.New(t)
	t.Setenv("CHAT_BACKEND_URL", "http://relay.example:8080")
	t.Setenv("CHAT_SETTLE_DELAY", "250ms")

	cfg, err := LoadClient(t.TempDir())

	req.NoError(err)
	req.Equal("http://relay.example:8080", cfg.PubSubBaseURL())
	req.Equal("chat", cfg.Channel)
	req.Equal(250*time.Millisecond, cfg.SettleDelay)
	req.Zero(cfg.RequestTimeout)

	t.Setenv("CHAT_PUBSUB_URL", "http://pubsub.example")
	cfg, err = LoadClient(t.TempDir())
	req.NoError(err)
	req.Equal("http://pubsub.example", cfg.PubSubBaseURL())

	t.Setenv("CHAT_BACKEND_URL", "not a url")
	_, err = LoadClient(t.TempDir())
	req.Error(err)
}
