package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8080/predict", cfg.PredictURL)
	assert.Equal(t, 40, cfg.SampleEvery)
	assert.Equal(t, 0.6, cfg.MinConfidence)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FINGERSPELL_SAMPLE_EVERY", "10")
	t.Setenv("FINGERSPELL_PREDICT_URL", "http://ml:8080/predict")
	t.Setenv("FINGERSPELL_DATA_DIR", dir)

	cfg, err := Load([]string{"-sample-every", "25", "-request-timeout", "2s"})
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.SampleEvery, "flag wins over env")
	assert.Equal(t, "http://ml:8080/predict", cfg.PredictURL, "env wins over default")
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, filepath.Join(dir, "hooks"), cfg.HookDir)
	assert.Equal(t, filepath.Join(dir, "fingerspell.db"), cfg.DBPath())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "zero interval", args: []string{"-sample-every", "0"}},
		{name: "confidence above one", args: []string{"-min-confidence", "1.5"}},
		{name: "bad url", args: []string{"-predict-url", "not a url"}},
		{name: "bad log level", args: []string{"-log-level", "chatty"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FINGERSPELL_DATA_DIR", t.TempDir())
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv_ReportsEveryBadValue(t *testing.T) {
	env := map[string]string{
		"FINGERSPELL_FPS":            "fast",
		"FINGERSPELL_MIN_CONFIDENCE": "high",
		"FINGERSPELL_TRAY":           "1",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "FINGERSPELL_FPS")
	assert.Contains(t, err.Error(), "FINGERSPELL_MIN_CONFIDENCE")
	assert.True(t, cfg.Tray)
}
