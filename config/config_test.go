package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Server.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)

	// Empty backends mean in-memory store and in-process registry.
	assert.Empty(t, cfg.Database.Host)
	assert.Empty(t, cfg.Redis.Address)

	assert.Equal(t, DefaultRegistryConfig(), cfg.Registry)
	assert.Equal(t, DefaultMergeConfig(), cfg.Merge)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TRIPFORGE_SERVER_PORT", "9090")
	t.Setenv("TRIPFORGE_REGISTRY_MIN_SAMPLES", "10")
	t.Setenv("TRIPFORGE_MERGE_DAY_WINDOW", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Registry.MinSamples)
	assert.Equal(t, 7, cfg.Merge.DayWindow)
}

func TestLoadConfigRejectsInvalidThresholds(t *testing.T) {
	t.Setenv("TRIPFORGE_REGISTRY_STABLE_PCT", "150")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.stable_pct")
}

func TestDatabaseURL(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "tripforge",
		Password: "p@ss/word",
		Name:     "tripforge",
	}
	url := cfg.URL()
	assert.Contains(t, url, "postgres://tripforge:")
	assert.Contains(t, url, "@db.internal:5432/tripforge")
	assert.Contains(t, url, "sslmode=disable")
	// Credentials are escaped, never raw.
	assert.NotContains(t, url, "p@ss/word")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Registry: DefaultRegistryConfig(), Merge: DefaultMergeConfig()}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults pass", func(c *Config) {}, ""},
		{"min samples", func(c *Config) { c.Registry.MinSamples = 0 }, "registry.min_samples"},
		{"stable pct zero", func(c *Config) { c.Registry.StablePct = 0 }, "registry.stable_pct"},
		{"window size", func(c *Config) { c.Registry.WindowSize = 0 }, "registry.window_size"},
		{"max examples", func(c *Config) { c.Registry.MaxExamples = 0 }, "registry.max_examples"},
		{"top k", func(c *Config) { c.Merge.TopK = 0 }, "merge.top_k"},
		{"day window", func(c *Config) { c.Merge.DayWindow = -1 }, "merge.day_window"},
		{"weight out of range", func(c *Config) { c.Merge.DateWeight = 1.5 }, "merge.date_weight"},
		{"date threshold out of range", func(c *Config) { c.Merge.DateThreshold = 1.5 }, "merge.date_threshold"},
		{"namespace threshold negative", func(c *Config) { c.Merge.NamespaceThreshold = -0.1 }, "merge.namespace_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
