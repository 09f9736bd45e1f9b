package config

import (
	"fmt"
	"time"
)

// GuardianConfig is the top-level configuration for the message safety
// pipeline. Loaded once at startup from YAML; see Load.
type GuardianConfig struct {
	Server   ServerConfig   `yaml:"server"`
	PII      PIIConfig      `yaml:"pii"`
	Crisis   CrisisConfig   `yaml:"crisis"`
	Emotion  EmotionConfig  `yaml:"emotion"`
	Policy   PolicyConfig   `yaml:"policy"`
	Session  SessionConfig  `yaml:"session"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Models   ModelsConfig   `yaml:"models"`
}

type ServerConfig struct {
	Port        int `yaml:"port"`
	MetricsPort int `yaml:"metrics_port"`
}

type PIIConfig struct {
	MaxInputLength      int     `yaml:"max_input_length"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	DefaultLocale       string  `yaml:"default_locale"`
}

type CrisisConfig struct {
	// Threshold applies to the combined max-of-signals score.
	Threshold      float64 `yaml:"threshold"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type EmotionConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type PolicyConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type SessionConfig struct {
	// Store selects the backend: "memory" or "redis".
	Store                       string      `yaml:"store"`
	Redis                       RedisConfig `yaml:"redis"`
	InactivityTimeoutMinutes    int         `yaml:"inactivity_timeout_minutes"`
	ArchiveSweepIntervalMinutes int         `yaml:"archive_sweep_interval_minutes"`
	PersistRetryBackoffMs       int         `yaml:"persist_retry_backoff_ms"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	Database  int    `yaml:"database"`
	KeyPrefix string `yaml:"key_prefix"`
}

type DispatchConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type ModelsConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKeyEnv     string `yaml:"api_key_env"`
	CrisisModel   string `yaml:"crisis_model"`
	EmotionModel  string `yaml:"emotion_model"`
	ResponseModel string `yaml:"response_model"`
}

// CrisisTimeout returns the per-turn budget for the crisis model call.
func (c *GuardianConfig) CrisisTimeout() time.Duration {
	return time.Duration(c.Crisis.TimeoutSeconds) * time.Second
}

// EmotionTimeout returns the per-turn budget for the emotion model call.
func (c *GuardianConfig) EmotionTimeout() time.Duration {
	return time.Duration(c.Emotion.TimeoutSeconds) * time.Second
}

// DispatchTimeout returns the budget for generative response production.
func (c *GuardianConfig) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutSeconds) * time.Second
}

// InactivityTimeout returns how long a session may stay idle before the
// archiver sweeps it.
func (c *GuardianConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.Session.InactivityTimeoutMinutes) * time.Minute
}

// ArchiveSweepInterval returns how often the archiver scans for idle sessions.
func (c *GuardianConfig) ArchiveSweepInterval() time.Duration {
	return time.Duration(c.Session.ArchiveSweepIntervalMinutes) * time.Minute
}

// PersistRetryBackoff returns the pause before the single persistence retry.
func (c *GuardianConfig) PersistRetryBackoff() time.Duration {
	return time.Duration(c.Session.PersistRetryBackoffMs) * time.Millisecond
}

func (c *GuardianConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9190
	}
	if c.PII.MaxInputLength == 0 {
		c.PII.MaxInputLength = 4096
	}
	if c.PII.ConfidenceThreshold == 0 {
		c.PII.ConfidenceThreshold = 0.6
	}
	if c.PII.DefaultLocale == "" {
		c.PII.DefaultLocale = "ru"
	}
	if c.Crisis.Threshold == 0 {
		c.Crisis.Threshold = 0.7
	}
	if c.Crisis.TimeoutSeconds == 0 {
		c.Crisis.TimeoutSeconds = 3
	}
	if c.Emotion.TimeoutSeconds == 0 {
		c.Emotion.TimeoutSeconds = 3
	}
	if c.Policy.Dir == "" {
		c.Policy.Dir = "config/policy"
	}
	if c.Session.Store == "" {
		c.Session.Store = "memory"
	}
	if c.Session.InactivityTimeoutMinutes == 0 {
		c.Session.InactivityTimeoutMinutes = 30
	}
	if c.Session.ArchiveSweepIntervalMinutes == 0 {
		c.Session.ArchiveSweepIntervalMinutes = 5
	}
	if c.Session.PersistRetryBackoffMs == 0 {
		c.Session.PersistRetryBackoffMs = 200
	}
	if c.Dispatch.TimeoutSeconds == 0 {
		c.Dispatch.TimeoutSeconds = 3
	}
}

func validateConfigStructure(c *GuardianConfig) error {
	if c.Crisis.Threshold < 0 || c.Crisis.Threshold > 1 {
		return fmt.Errorf("crisis.threshold must be within [0, 1], got %v", c.Crisis.Threshold)
	}
	if c.PII.ConfidenceThreshold < 0 || c.PII.ConfidenceThreshold > 1 {
		return fmt.Errorf("pii.confidence_threshold must be within [0, 1], got %v", c.PII.ConfidenceThreshold)
	}
	if c.PII.MaxInputLength < 0 {
		return fmt.Errorf("pii.max_input_length must not be negative, got %d", c.PII.MaxInputLength)
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("session.store must be memory or redis, got %q", c.Session.Store)
	}
	if c.Session.Store == "redis" && c.Session.Redis.Address == "" {
		return fmt.Errorf("session.redis.address is required when session.store is redis")
	}
	return nil
}
