package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2.0, cfg.Pipeline.SigmaThreshold)
	assert.Equal(t, 0.4, cfg.Pipeline.NDVICutoff)
	assert.Equal(t, 0.15, cfg.Pipeline.CloudPenaltyCap)
	assert.Equal(t, 0.6, cfg.Pipeline.MinConfidence)
	assert.Equal(t, 5, cfg.Pipeline.MinHistory)
	assert.Equal(t, 5, cfg.Pipeline.LookbackYears)
	assert.Equal(t, 0.01, cfg.Violation.MinAreaHa)
	assert.Equal(t, 500.0, cfg.EarlyWarning.BufferDistanceM)
	assert.Equal(t, 100.0, cfg.EarlyWarning.CriticalDistanceM)
	assert.Equal(t, 0.40, cfg.Imagery.MaxCloudCover)
}

func TestConfigOverridesFromEnv(t *testing.T) {
	t.Setenv("EXMON_SERVER_PORT", "9090")
	t.Setenv("EXMON_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Environment)
}

func TestValidateRejectsUnorderedSeverityBands(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Violation.MediumMaxHa = cfg.Violation.HighMaxHa + 1

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "severity bands")
}

func TestValidateRejectsInvertedProximityDistances(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.EarlyWarning.CriticalDistanceM = cfg.EarlyWarning.BufferDistanceM + 1

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "critical distance")
}
