package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/sim"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 10000, cfg.Solver.MaxNodes)
	assert.Equal(t, 1e-6, cfg.Solver.IntTolerance)
	assert.Equal(t, 4096, cfg.Solver.CacheSize)
	assert.Equal(t, 8, cfg.Simulation.MaxLevels)
	assert.Equal(t, 5*time.Minute, cfg.Simulation.Timeout)
	assert.Equal(t, time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, sim.PolicyAbort, cfg.FailurePolicy())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{
		"ENV":                "production",
		"HTTP_PORT":          "9090",
		"LOG_FORMAT":         "text",
		"SOLVER_MAX_NODES":   "50",
		"SOLVER_CACHE":       "0",
		"SIM_TIMEOUT":        "30s",
		"SIM_FAILURE_POLICY": "zero",
		"JOB_RETENTION":      "10m",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level, "production defaults to info")
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 50, cfg.Solver.MaxNodes)
	assert.Equal(t, 0, cfg.Solver.CacheSize)
	assert.Equal(t, 30*time.Second, cfg.Simulation.Timeout)
	assert.Equal(t, sim.PolicyZeroReturn, cfg.FailurePolicy())
	assert.Equal(t, 10*time.Minute, cfg.Jobs.Retention)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"unparsable port", map[string]string{"HTTP_PORT": "http"}},
		{"port out of range", map[string]string{"HTTP_PORT": "70000"}},
		{"unknown policy", map[string]string{"SIM_FAILURE_POLICY": "retry"}},
		{"underscored policy", map[string]string{"SIM_FAILURE_POLICY": "zero_return"}},
		{"tolerance too large", map[string]string{"SOLVER_INT_TOLERANCE": "0.5"}},
		{"unknown format", map[string]string{"LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromMap(tt.vars)
			require.Error(t, err)
			assert.Equal(t, errors.KindInvalid, errors.KindOf(err))
		})
	}
}

func TestLoadAcceptsEveryPolicyName(t *testing.T) {
	for _, name := range sim.PolicyNames {
		cfg, err := LoadFromMap(map[string]string{"SIM_FAILURE_POLICY": name})
		require.NoError(t, err, name)

		want, err := sim.ParsePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, want, cfg.FailurePolicy(), name)
	}
}
