package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NODE_ID", "")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.NodeID)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 5, cfg.EventBus.Workers)
	assert.Equal(t, "eventbus_channel", cfg.Redis.Channel)
	assert.Equal(t, 30*time.Minute, cfg.Locking.MaxAge)
	assert.Contains(t, cfg.Database.URL, "postgres://")
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("NODE_ID", "node-7")
	t.Setenv("EVENTBUS_WORKERS", "9")
	t.Setenv("REDIS_CHANNEL", "bus")
	t.Setenv("LOCK_MAX_AGE", "90")
	t.Setenv("STORAGE_BACKEND", StorageMemory)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, 9, cfg.EventBus.Workers)
	assert.Equal(t, "bus", cfg.Redis.Channel)
	assert.Equal(t, 90*time.Second, cfg.Locking.MaxAge)
	assert.Equal(t, StorageMemory, cfg.Storage)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"workers":    {"EVENTBUS_WORKERS": "0"},
		"storage":    {"STORAGE_BACKEND": "mongo"},
		"jwt secret": {"APP_ENV": "production", "JWT_SECRET": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
