package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Risk.WarnThreshold)
	assert.Equal(t, 70, cfg.Risk.DenyThreshold)
	assert.Equal(t, 50, cfg.Risk.StepUpThreshold)
	assert.Equal(t, 3, cfg.Verification.MaxAttempts)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RISK_SERVER__PORT", "9999")
	t.Setenv("RISK_RISK__DENY_THRESHOLD", "80")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 80, cfg.Risk.DenyThreshold)
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("RISK_RISK__WARN_THRESHOLD", "90")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warn threshold")
}
