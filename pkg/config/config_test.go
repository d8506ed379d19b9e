package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, c.Session.Duration)
	assert.Equal(t, time.Second, c.Session.MinDelay)
	assert.Equal(t, 3*time.Second, c.Session.MaxDelay)
	assert.Equal(t, 3, c.Session.MaxAttempts)
	assert.Equal(t, "primary", c.Acquisition.Strategy)
	assert.Equal(t, "file", c.Storage.Backend)
	assert.Equal(t, 6*time.Hour, c.Pipeline.CacheTTL)
	assert.Equal(t, 0.5, c.Fusion.WithPremium.Premium)
	assert.Equal(t, "producer-consumer", c.Queue.Mode)
	require.NoError(t, c.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("environment: test\nacquisition:\n  strategy: fixture\nsession:\n  max_attempts: 5\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, "fixture", c.Acquisition.Strategy)
	assert.Equal(t, 5, c.Session.MaxAttempts)
	assert.Equal(t, 10*time.Minute, c.Session.Duration)
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	env := map[string]string{
		"IPOPULSE_KAFKA_BROKERS":        "a:9092,b:9092",
		"IPOPULSE_ACQUISITION_STRATEGY": "fixture",
		"IPOPULSE_PORT":                 "9090",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "fixture", c.Acquisition.Strategy)
	assert.Equal(t, 9090, c.Server.Port)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown strategy", func(c *Config) { c.Acquisition.Strategy = "mirror" }},
		{"redis storage without redis", func(c *Config) { c.Storage.Backend = "redis" }},
		{"inverted delay window", func(c *Config) { c.Session.MinDelay = 5 * time.Second }},
		{"postgres without dsn", func(c *Config) { c.History.Backend = "postgres" }},
		{"http ai without url", func(c *Config) { c.AI.Provider = "http" }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"unknown queue mode", func(c *Config) { c.Queue.Mode = "broadcast" }},
		{"fusion weights off", func(c *Config) { c.Fusion.WithPremium.AI = 0.5 }},
		{"negative fusion weight", func(c *Config) {
			c.Fusion.WithoutPremium.Math = 1.5
			c.Fusion.WithoutPremium.AI = -0.5
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Default()
			require.NoError(t, err)
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
