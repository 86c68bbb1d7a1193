// Package config holds operator-level configuration for a FlowBit process.
//
// Everything here is infrastructure tuning set by whoever deploys the
// pipeline: thresholds, retry policy, TTLs, listen address. It is resolved
// once at startup via Viper (env vars with the FLOWBIT_ prefix, or
// flowbit.config.yaml) and validated before any input is accepted —
// an invalid value is fatal, never a runtime surprise.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the FLOWBIT_ prefix
// (e.g. "session_ttl" → FLOWBIT_SESSION_TTL) and to a YAML field in
// flowbit.config.yaml.
const (
	KeyDataDir             = "data_dir"
	KeyConfidenceThreshold = "classification_confidence_threshold"
	KeyDeviationMultiple   = "anomaly_deviation_multiple"
	KeyAnomalyCritical     = "anomaly_critical_threshold"
	KeyHighValueThreshold  = "high_value_threshold"
	KeyRetryAttempts       = "retry_attempts"
	KeyBackoffBase         = "backoff_base"
	KeyBackoffCap          = "backoff_cap"
	KeyActionTimeout       = "action_timeout"
	KeySessionTimeout      = "session_timeout"
	KeySessionTTL          = "session_ttl"
	KeyBaselineWindow      = "baseline_window"
	KeyConcurrency         = "concurrency"
	KeyRequiredActions     = "required_actions"
	KeyIDPrefixes          = "id_prefixes"
	KeyLexiconFile         = "lexicon_file"
	KeyTriggersFile        = "triggers_file"
	KeySigningKey          = "signing_key"
	KeyListenAddr          = "listen_addr"
	KeyGlobalRPM           = "global_rpm"
	KeyPerCallerRPM        = "per_caller_rpm"
	KeyMaxInputKB          = "max_input_kb"
)

// Defaults. Thresholds mirror the heuristics' calibration; changing them
// shifts escalation behavior, not correctness.
const (
	DefaultConfidenceThreshold = 0.3
	DefaultDeviationMultiple   = 3.0
	DefaultAnomalyCritical     = 0.8
	DefaultHighValueThreshold  = 10000.0
	DefaultRetryAttempts       = 3
	DefaultBackoffBase         = 100 * time.Millisecond
	DefaultBackoffCap          = 2 * time.Second
	DefaultActionTimeout       = 5 * time.Second
	DefaultSessionTimeout      = 2 * time.Minute
	DefaultSessionTTL          = 24 * time.Hour
	DefaultBaselineWindow      = 1000
	DefaultConcurrency         = 16
	DefaultListenAddr          = ":8080"
	DefaultGlobalRPM           = 600
	DefaultPerCallerRPM        = 60
	DefaultMaxInputKB          = 512
)

// Config is the resolved operator configuration consumed by the core.
type Config struct {
	DataDir string // base directory for all state (~/.flowbit)

	// Classifier
	ConfidenceThreshold float64 // intents below this report as unknown
	LexiconFile         string  // optional global lexicon override YAML
	TriggersFile        string  // optional webhook/schedule trigger YAML

	// JSON agent anomaly detection
	DeviationMultiple float64 // stddev multiple before a value is anomalous
	AnomalyCritical   float64 // anomaly_score at or above proposes critical FLAG_ANOMALY
	BaselineWindow    int     // bounded per-field sample retention

	// PDF agent
	HighValueThreshold float64 // invoice total above this proposes RISK_ALERT

	// Email agent
	IDPrefixes []string // identifier prefixes scanned as customer/order ids

	// Action router
	RetryAttempts int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	ActionTimeout time.Duration

	// Orchestrator
	SessionTimeout  time.Duration
	Concurrency     int
	RequiredActions []string // action types whose exhaustion fails the session

	// Store
	SessionTTL time.Duration
	SigningKey string // HMAC key for session record signatures; empty disables signing

	// HTTP front-end
	ListenAddr   string
	GlobalRPM    int
	PerCallerRPM int
	MaxInputKB   int
}

// SessionDBPath returns the full path to the session SQLite database.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("FLOWBIT")
	viper.AutomaticEnv()
	viper.SetDefault(KeyConfidenceThreshold, DefaultConfidenceThreshold)
	viper.SetDefault(KeyDeviationMultiple, DefaultDeviationMultiple)
	viper.SetDefault(KeyAnomalyCritical, DefaultAnomalyCritical)
	viper.SetDefault(KeyHighValueThreshold, DefaultHighValueThreshold)
	viper.SetDefault(KeyRetryAttempts, DefaultRetryAttempts)
	viper.SetDefault(KeyBackoffBase, DefaultBackoffBase)
	viper.SetDefault(KeyBackoffCap, DefaultBackoffCap)
	viper.SetDefault(KeyActionTimeout, DefaultActionTimeout)
	viper.SetDefault(KeySessionTimeout, DefaultSessionTimeout)
	viper.SetDefault(KeySessionTTL, DefaultSessionTTL)
	viper.SetDefault(KeyBaselineWindow, DefaultBaselineWindow)
	viper.SetDefault(KeyConcurrency, DefaultConcurrency)
	viper.SetDefault(KeyIDPrefixes, []string{"CUST_", "ORD-", "TICKET-", "REF-"})
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyGlobalRPM, DefaultGlobalRPM)
	viper.SetDefault(KeyPerCallerRPM, DefaultPerCallerRPM)
	viper.SetDefault(KeyMaxInputKB, DefaultMaxInputKB)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:             resolveDataDir(),
		ConfidenceThreshold: viper.GetFloat64(KeyConfidenceThreshold),
		LexiconFile:         viper.GetString(KeyLexiconFile),
		TriggersFile:        viper.GetString(KeyTriggersFile),
		DeviationMultiple:   viper.GetFloat64(KeyDeviationMultiple),
		AnomalyCritical:     viper.GetFloat64(KeyAnomalyCritical),
		BaselineWindow:      viper.GetInt(KeyBaselineWindow),
		HighValueThreshold:  viper.GetFloat64(KeyHighValueThreshold),
		IDPrefixes:          viper.GetStringSlice(KeyIDPrefixes),
		RetryAttempts:       viper.GetInt(KeyRetryAttempts),
		BackoffBase:         viper.GetDuration(KeyBackoffBase),
		BackoffCap:          viper.GetDuration(KeyBackoffCap),
		ActionTimeout:       viper.GetDuration(KeyActionTimeout),
		SessionTimeout:      viper.GetDuration(KeySessionTimeout),
		Concurrency:         viper.GetInt(KeyConcurrency),
		RequiredActions:     viper.GetStringSlice(KeyRequiredActions),
		SessionTTL:          viper.GetDuration(KeySessionTTL),
		SigningKey:          viper.GetString(KeySigningKey),
		ListenAddr:          viper.GetString(KeyListenAddr),
		GlobalRPM:           viper.GetInt(KeyGlobalRPM),
		PerCallerRPM:        viper.GetInt(KeyPerCallerRPM),
		MaxInputKB:          viper.GetInt(KeyMaxInputKB),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowbit"
	}
	return filepath.Join(home, ".flowbit")
}

// Validate checks every threshold and duration. Called from Load; exported
// so hand-built configs in tests and embedding callers get the same checks.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("classification_confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.DeviationMultiple <= 0 {
		return fmt.Errorf("anomaly_deviation_multiple must be positive, got %v", c.DeviationMultiple)
	}
	if c.AnomalyCritical <= 0 || c.AnomalyCritical > 1 {
		return fmt.Errorf("anomaly_critical_threshold must be in (0,1], got %v", c.AnomalyCritical)
	}
	if c.HighValueThreshold <= 0 {
		return fmt.Errorf("high_value_threshold must be positive, got %v", c.HighValueThreshold)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive, got %v", c.BackoffBase)
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff_cap %v must not be below backoff_base %v", c.BackoffCap, c.BackoffBase)
	}
	if c.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be positive, got %v", c.ActionTimeout)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %v", c.SessionTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %v", c.SessionTTL)
	}
	if c.BaselineWindow < 2 {
		return fmt.Errorf("baseline_window must be at least 2, got %d", c.BaselineWindow)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxInputKB < 1 {
		return fmt.Errorf("max_input_kb must be at least 1, got %d", c.MaxInputKB)
	}
	return nil
}

// Default returns a validated config with all defaults applied and state
// rooted at dataDir. Used by tests and embedding callers that bypass Viper.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:             dataDir,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		DeviationMultiple:   DefaultDeviationMultiple,
		AnomalyCritical:     DefaultAnomalyCritical,
		BaselineWindow:      DefaultBaselineWindow,
		HighValueThreshold:  DefaultHighValueThreshold,
		IDPrefixes:          []string{"CUST_", "ORD-", "TICKET-", "REF-"},
		RetryAttempts:       DefaultRetryAttempts,
		BackoffBase:         DefaultBackoffBase,
		BackoffCap:          DefaultBackoffCap,
		ActionTimeout:       DefaultActionTimeout,
		SessionTimeout:      DefaultSessionTimeout,
		Concurrency:         DefaultConcurrency,
		SessionTTL:          DefaultSessionTTL,
		ListenAddr:          DefaultListenAddr,
		GlobalRPM:           DefaultGlobalRPM,
		PerCallerRPM:        DefaultPerCallerRPM,
		MaxInputKB:          DefaultMaxInputKB,
	}
}
