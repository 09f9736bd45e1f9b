package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 9190, cfg.Server.MetricsPort)
	assert.Equal(t, 4096, cfg.PII.MaxInputLength)
	assert.InDelta(t, 0.6, cfg.PII.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "ru", cfg.PII.DefaultLocale)
	assert.InDelta(t, 0.7, cfg.Crisis.Threshold, 1e-9)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, 3*time.Second, cfg.CrisisTimeout())
	assert.Equal(t, 30*time.Minute, cfg.InactivityTimeout())
	assert.Equal(t, 5*time.Minute, cfg.ArchiveSweepInterval())
	assert.Equal(t, 200*time.Millisecond, cfg.PersistRetryBackoff())
}

func TestParse_ExplicitValuesSurviveDefaults(t *testing.T) {
	cfg, err := Parse(writeConfig(t, `
pii:
  max_input_length: 512
  confidence_threshold: 0.9
  default_locale: "en"
crisis:
  threshold: 0.85
session:
  inactivity_timeout_minutes: 60
`))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.PII.MaxInputLength)
	assert.InDelta(t, 0.9, cfg.PII.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "en", cfg.PII.DefaultLocale)
	assert.InDelta(t, 0.85, cfg.Crisis.Threshold, 1e-9)
	assert.Equal(t, time.Hour, cfg.InactivityTimeout())
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"threshold above one", "crisis:\n  threshold: 1.5\n"},
		{"unknown store", "session:\n  store: postgres\n"},
		{"redis without address", "session:\n  store: redis\n"},
		{"negative max input", "pii:\n  max_input_length: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestParse_MissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse(writeConfig(t, "server: [not a map\n"))
	assert.Error(t, err)
}

func TestReplaceAndGet(t *testing.T) {
	cfg := &GuardianConfig{}
	cfg.applyDefaults()

	Replace(cfg)
	assert.Same(t, cfg, Get())

	ch := UpdateChannel()
	next := &GuardianConfig{}
	next.applyDefaults()
	Replace(next)

	select {
	case got := <-ch:
		assert.Same(t, next, got)
	case <-time.After(time.Second):
		t.Fatal("expected update notification")
	}
}
