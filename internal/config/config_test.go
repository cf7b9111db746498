package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		StorageType:     StorageMemory,
		StartingBalance: 1000,
		LobbyTimeout:    time.Minute,
		CountdownWindow: time.Second,
		RoundTimeout:    time.Second,
		TickInterval:    100 * time.Millisecond,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("LOBBY_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.StorageType)
	assert.Equal(t, 90*time.Second, cfg.LobbyTimeout)
	assert.Equal(t, int64(1000), cfg.StartingBalance)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown storage", mutate: func(c *Config) { c.StorageType = "redis" }, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.StorageType = StoragePostgres }, wantErr: true},
		{name: "postgres with url", mutate: func(c *Config) {
			c.StorageType = StoragePostgres
			c.DatabaseURL = "postgres://localhost/caseclash"
		}},
		{name: "negative balance", mutate: func(c *Config) { c.StartingBalance = -1 }, wantErr: true},
		{name: "zero lobby timeout", mutate: func(c *Config) { c.LobbyTimeout = 0 }, wantErr: true},
		{name: "discord token without channel", mutate: func(c *Config) { c.DiscordToken = "t" }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
