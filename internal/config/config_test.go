package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "songscout.db", cfg.Store.DatabaseURL)
	assert.Equal(t, []string{"tipofmytongue", "WhatsThisSong", "NameThatSong"}, cfg.Reddit.Subreddits)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "solved", cfg.Discovery.Mode)
	assert.Equal(t, 100, cfg.Discovery.Limit)
	assert.True(t, cfg.Discovery.Enrich)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SONGSCOUT_STORE_DRIVER", "postgres")
	t.Setenv("SONGSCOUT_STORE_DATABASE_URL", "postgres://localhost/songscout")
	t.Setenv("SONGSCOUT_ANTHROPIC_KEY", "sk-test")
	t.Setenv("SONGSCOUT_DISCOVERY_MODE", "hot")
	t.Setenv("SONGSCOUT_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/songscout", cfg.Store.DatabaseURL)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
	assert.Equal(t, "hot", cfg.Discovery.Mode)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateCredentials(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic API key")

	// Forum credentials are optional, so the key alone is enough.
	cfg.Anthropic.Key = "sk-test"
	assert.NoError(t, cfg.ValidateCredentials())

	// But a half-configured credential pair is a mistake, not a choice.
	cfg.Reddit.ClientID = "abc"
	err = cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set together")

	cfg.Reddit.ClientSecret = "xyz"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
