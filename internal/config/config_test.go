package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/scan/engine"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestEngineConfigDefaults(t *testing.T) {
	v := newViper()
	v.Set("engine.seed", 7)

	cfg, err := EngineConfigFromViper(v)
	require.NoError(t, err)
	defaults := engine.DefaultConfig()
	assert.Equal(t, defaults.Workers, cfg.Workers)
	assert.Equal(t, defaults.Phases, cfg.Phases)
	assert.Equal(t, generation.AllModes(), cfg.Modes)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, defaults.ProbeTimeout, cfg.ProbeTimeout)
	assert.True(t, cfg.InferLinks)
}

func TestEngineConfigFromViper(t *testing.T) {
	v := newViper()
	v.Set("engine.workers", 8)
	v.Set("engine.max_failures", 3)
	v.Set("engine.phases.probing.enabled", false)
	v.Set("engine.phases.fuzzing.enabled", false)
	v.Set("engine.generation.modes", []string{"negative"})
	v.Set("network.base_url", "http://localhost:8080")
	v.Set("checks.enabled", []string{"not_a_server_error"})

	cfg, err := EngineConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxFailures)
	assert.Equal(t, []events.PhaseName{events.PhaseExamples, events.PhaseCoverage, events.PhaseStateful}, cfg.Phases)
	assert.Equal(t, generation.Modes{generation.Negative}, cfg.Modes)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, []string{"not_a_server_error"}, cfg.Checks)
	assert.NotZero(t, cfg.Seed)
}

func TestEngineConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"too many workers", "engine.workers", 65},
		{"no workers", "engine.workers", 0},
		{"negative failure limit", "engine.max_failures", -1},
		{"bad base url", "network.base_url", "not a url"},
		{"no examples", "engine.fuzzing.max_examples", 0},
		{"no modes", "engine.generation.modes", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.val)
			_, err := EngineConfigFromViper(v)
			assert.Error(t, err)
		})
	}

	v := newViper()
	v.Set("engine.generation.modes", []string{"sideways"})
	_, err := EngineConfigFromViper(v)
	assert.ErrorContains(t, err, "unknown generation mode")
}

func TestValidateEngineConfigPhaseNames(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.Phases = append(cfg.Phases, events.PhaseName("warmup"))
	err := ValidateEngineConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Phases[5]")
}

func TestTransportOptionsFromViper(t *testing.T) {
	v := newViper()
	opts := TransportOptionsFromViper(v)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.True(t, opts.TLSVerify)
	assert.Nil(t, opts.Auth)

	v.Set("network.auth.bearer", "token")
	v.Set("network.proxy", "http://127.0.0.1:8080")
	opts = TransportOptionsFromViper(v)
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "token", opts.Auth.BearerToken)
	assert.Equal(t, "http://127.0.0.1:8080", opts.Proxy)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kensa.yaml")
	content := "engine:\n  workers: 4\nnetwork:\n  base_url: http://api.local\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Cleanup(viper.Reset)
	require.NoError(t, LoadConfig(path))
	assert.Equal(t, 4, viper.GetInt("engine.workers"))
	assert.Equal(t, "http://api.local", viper.GetString("network.base_url"))
	assert.Equal(t, "pretty", viper.GetString("report.format"))
}
