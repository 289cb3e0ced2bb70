// Package config handles loading and validation of application configuration
// from environment variables and optional config files via viper.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Environment represents the application's running environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"environment"`
	Port           string      `mapstructure:"port"`
	AllowedOrigins []string    `mapstructure:"allowed_origins"`
	Version        string      `mapstructure:"version"`
}

// DatabaseConfig holds PostgreSQL connection details for the trip store.
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// URL returns a postgres:// connection URL.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds connection details for the shared field-registry backend.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RegistryConfig holds the field-registry stability thresholds. These are
// tunable policy, not constants: emerging below MinSamples, stable when the
// recent WindowSize occurrence percentages all reach StablePct.
type RegistryConfig struct {
	MinSamples  int     `mapstructure:"min_samples"`
	StablePct   float64 `mapstructure:"stable_pct"`
	WindowSize  int     `mapstructure:"window_size"`
	MaxExamples int     `mapstructure:"max_examples"`
}

// MergeConfig holds weights and thresholds for the merge-candidate detector.
// The three heuristic weights should sum to at most 1.0; the total score is
// clamped either way.
type MergeConfig struct {
	DayWindow          int     `mapstructure:"day_window"`
	TopK               int     `mapstructure:"top_k"`
	TravelerWeight     float64 `mapstructure:"traveler_weight"`
	DateWeight         float64 `mapstructure:"date_weight"`
	NamespaceWeight    float64 `mapstructure:"namespace_weight"`
	DateThreshold      float64 `mapstructure:"date_threshold"`
	NamespaceThreshold float64 `mapstructure:"namespace_threshold"`
}

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Registry RegistryConfig `mapstructure:"registry"`
	Merge    MergeConfig    `mapstructure:"merge"`
}

// DefaultRegistryConfig returns the registry thresholds used when no
// configuration source overrides them.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MinSamples:  3,
		StablePct:   80.0,
		WindowSize:  5,
		MaxExamples: 5,
	}
}

// DefaultMergeConfig returns the detector weights used when no configuration
// source overrides them.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		DayWindow:          3,
		TopK:               5,
		TravelerWeight:     0.2,
		DateWeight:         0.5,
		NamespaceWeight:    0.3,
		DateThreshold:      0.5,
		NamespaceThreshold: 0.1,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", string(EnvDevelopment))
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.version", "dev")

	// Empty host selects the in-memory trip store; empty redis address
	// selects the in-process field registry.
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "tripforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	reg := DefaultRegistryConfig()
	v.SetDefault("registry.min_samples", reg.MinSamples)
	v.SetDefault("registry.stable_pct", reg.StablePct)
	v.SetDefault("registry.window_size", reg.WindowSize)
	v.SetDefault("registry.max_examples", reg.MaxExamples)

	mrg := DefaultMergeConfig()
	v.SetDefault("merge.day_window", mrg.DayWindow)
	v.SetDefault("merge.top_k", mrg.TopK)
	v.SetDefault("merge.traveler_weight", mrg.TravelerWeight)
	v.SetDefault("merge.date_weight", mrg.DateWeight)
	v.SetDefault("merge.namespace_weight", mrg.NamespaceWeight)
	v.SetDefault("merge.date_threshold", mrg.DateThreshold)
	v.SetDefault("merge.namespace_threshold", mrg.NamespaceThreshold)
}

// LoadConfig reads configuration from the environment (TRIPFORGE_ prefixed
// variables, e.g. TRIPFORGE_REGISTRY_MIN_SAMPLES) and an optional config.yaml
// in the working directory.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRIPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// Config files are optional; env + defaults are enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that tunable thresholds are usable.
func (c *Config) Validate() error {
	if c.Registry.MinSamples < 1 {
		return fmt.Errorf("registry.min_samples must be >= 1, got %d", c.Registry.MinSamples)
	}
	if c.Registry.StablePct <= 0 || c.Registry.StablePct > 100 {
		return fmt.Errorf("registry.stable_pct must be in (0, 100], got %v", c.Registry.StablePct)
	}
	if c.Registry.WindowSize < 1 {
		return fmt.Errorf("registry.window_size must be >= 1, got %d", c.Registry.WindowSize)
	}
	if c.Registry.MaxExamples < 1 {
		return fmt.Errorf("registry.max_examples must be >= 1, got %d", c.Registry.MaxExamples)
	}
	if c.Merge.TopK < 1 {
		return fmt.Errorf("merge.top_k must be >= 1, got %d", c.Merge.TopK)
	}
	if c.Merge.DayWindow < 0 {
		return fmt.Errorf("merge.day_window must be >= 0, got %d", c.Merge.DayWindow)
	}
	for name, w := range map[string]float64{
		"merge.traveler_weight":     c.Merge.TravelerWeight,
		"merge.date_weight":         c.Merge.DateWeight,
		"merge.namespace_weight":    c.Merge.NamespaceWeight,
		"merge.date_threshold":      c.Merge.DateThreshold,
		"merge.namespace_threshold": c.Merge.NamespaceThreshold,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, w)
		}
	}
	return nil
}
