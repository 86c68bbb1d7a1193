package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default(t.TempDir())
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRetryAttempts, cfg.RetryAttempts)
	assert.Equal(t, DefaultAnomalyCritical, cfg.AnomalyCritical)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"confidence above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "classification_confidence_threshold"},
		{"negative deviation", func(c *Config) { c.DeviationMultiple = -1 }, "anomaly_deviation_multiple"},
		{"zero critical threshold", func(c *Config) { c.AnomalyCritical = 0 }, "anomaly_critical_threshold"},
		{"zero retry attempts", func(c *Config) { c.RetryAttempts = 0 }, "retry_attempts"},
		{"cap below base", func(c *Config) { c.BackoffCap = time.Millisecond; c.BackoffBase = time.Second }, "backoff_cap"},
		{"zero session ttl", func(c *Config) { c.SessionTTL = 0 }, "session_ttl"},
		{"tiny baseline window", func(c *Config) { c.BaselineWindow = 1 }, "baseline_window"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSessionDBPath(t *testing.T) {
	cfg := Default("/var/lib/flowbit")
	assert.Equal(t, "/var/lib/flowbit/sessions.db", cfg.SessionDBPath())
}
