package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaultsToLongpoll(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t", RunMode: "Polling"}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]Config{
		"missing token":       {},
		"unknown run mode":    {Telegram: TelegramConfig{Token: "t", RunMode: "push"}},
		"webhook without url": {Telegram: TelegramConfig{Token: "t", RunMode: RunModeWebhook}},
		"webhook without port": {
			Telegram: TelegramConfig{Token: "t", RunMode: "WEBHOOK"},
			Webhook:  WebhookConfig{URL: "https://bot.example.com/hook", Listen: "0.0.0.0"},
		},
		"negative poll timeout": {Telegram: TelegramConfig{Token: "t", LongPollTimeoutSeconds: -1}},
		"bad exclude": {
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"photo"}},
		},
		"negative interval": {
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{IntervalMS: -1},
		},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Normalize(&cfg))
		})
	}
}

func TestNormalizeLowercasesExcludes(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "t"},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback ", ""}},
	}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, []string{"callback"}, cfg.RateLimit.ExcludeUpdates)
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("telegram:\n  token: from-file\n  admin_id: 7\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, int64(7), cfg.Telegram.AdminID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
