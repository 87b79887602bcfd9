package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 2*time.Hour, cfg.SessionRetention)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.True(t, cfg.KeepTopicOnNewRound)
	assert.Equal(t, int64(4096), cfg.MaxFrameBytes)
	assert.Equal(t, 10, cfg.CodeAttempts)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("SESSION_RETENTION", "30m")
	t.Setenv("KEEP_TOPIC_ON_NEW_ROUND", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.SessionRetention)
	assert.False(t, cfg.KeepTopicOnNewRound)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
}
