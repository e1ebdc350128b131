package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHAT_HEARTBEAT_INTERVAL", "")
	t.Setenv("STORE_DRIVER", "")
	cfg := Load()

	assert.Equal(t, 25*time.Second, cfg.Chat.HeartbeatInterval)
	assert.Equal(t, 35*time.Second, cfg.Chat.ReadTimeout)
	assert.Equal(t, 256, cfg.Chat.SendBuffer)
	assert.Equal(t, int64(512*1024), cfg.Chat.MaxFrameBytes)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.False(t, cfg.Relay.Enabled)
	assert.Equal(t, int64(10<<20), cfg.Media.MaxFileBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("CHAT_SEND_BUFFER", "8")
	t.Setenv("RELAY_ENABLED", "true")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("SERVICE_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.Chat.HeartbeatInterval)
	assert.Equal(t, 8, cfg.Chat.SendBuffer)
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Service.AllowedOrigins)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CHAT_READ_TIMEOUT", "soon")
	t.Setenv("CHAT_SEND_BUFFER", "many")
	t.Setenv("RELAY_ENABLED", "perhaps")
	cfg := Load()

	assert.Equal(t, 35*time.Second, cfg.Chat.ReadTimeout)
	assert.Equal(t, 256, cfg.Chat.SendBuffer)
	assert.False(t, cfg.Relay.Enabled)
}
