package chatrelay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate.
const (
	DefaultDowngradeThreshold = 2000
	DefaultDowngradeDivisor   = 10
	DefaultPaceUnit           = time.Millisecond
	DefaultTopTierPaceStep    = 150
	DefaultPaceStep           = 50
)

// Config is the top-level relay configuration.
type Config struct {
	Listen           string          `yaml:"listen"`
	DefaultModel     string          `yaml:"default_model"`
	PrivilegedGroups []string        `yaml:"privileged_groups"`
	Models           []ModelConfig   `yaml:"models"`
	Downgrade        DowngradeConfig `yaml:"downgrade"`
	Pacing           PacingConfig    `yaml:"pacing"`
	Providers        ProvidersConfig `yaml:"providers"`
	Directory        DirectoryConfig `yaml:"directory"`
}

// ModelConfig describes one servable model.
type ModelConfig struct {
	Name       string `yaml:"name"`
	Deployment string `yaml:"deployment"`
	Context    int64  `yaml:"context"`
	Encoding   string `yaml:"encoding"`
	TopTier    bool   `yaml:"top_tier"`
}

// DowngradeConfig is the cost-saving downgrade rule for course-scoped
// requests: long conversations on Model are served by To instead, and the
// billed prompt count is rescaled by Divisor. The divisor is a heuristic
// tied to this model pair; it does not generalize to others.
type DowngradeConfig struct {
	Model     string `yaml:"model"`
	To        string `yaml:"to"`
	Threshold int64  `yaml:"threshold"`
	Divisor   int64  `yaml:"divisor"`
}

// Enabled reports whether the downgrade rule is configured.
func (d DowngradeConfig) Enabled() bool { return d.Model != "" && d.To != "" }

// PacingConfig controls the smoothed delivery cadence on the gated path.
// Each upstream event adds Step (or TopTierStep for top-tier models) pace
// units to the accumulated write delay.
type PacingConfig struct {
	Unit        time.Duration `yaml:"unit"`
	TopTierStep int64         `yaml:"top_tier_step"`
	Step        int64         `yaml:"step"`
}

// ProvidersConfig configures the two upstream backends.
type ProvidersConfig struct {
	Direct DirectProviderConfig `yaml:"direct"`
	Gated  GatedProviderConfig  `yaml:"gated"`
}

// DirectProviderConfig configures the direct (OpenAI-style) backend.
type DirectProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GatedProviderConfig configures the enterprise-gated (Azure-style) backend.
type GatedProviderConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
}

// DirectoryConfig selects and configures the usage directory driver.
type DirectoryConfig struct {
	Driver       string `yaml:"driver"` // memory, redis or postgres
	RedisAddr    string `yaml:"redis_addr"`
	PostgresURL  string `yaml:"postgres_url"`
	DefaultLimit int64  `yaml:"default_limit"` // 0 = unlimited
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("chatrelay: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("chatrelay: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Model looks up a model by name.
func (c Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Validate checks the config for required fields and consistency, and
// fills in defaults.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("chatrelay: config: at least one model is required")
	}

	names := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("chatrelay: config: models[%d]: name is required", i)
		}
		if names[m.Name] {
			return fmt.Errorf("chatrelay: config: duplicate model %q", m.Name)
		}
		names[m.Name] = true

		if m.Context <= 0 {
			return fmt.Errorf("chatrelay: config: models[%d] (%s): context must be positive", i, m.Name)
		}
	}

	if c.DefaultModel != "" && !names[c.DefaultModel] {
		return fmt.Errorf("chatrelay: config: default model %q is not configured", c.DefaultModel)
	}

	if c.Downgrade.Model != "" || c.Downgrade.To != "" {
		if !names[c.Downgrade.Model] {
			return fmt.Errorf("chatrelay: config: downgrade model %q is not configured", c.Downgrade.Model)
		}
		if !names[c.Downgrade.To] {
			return fmt.Errorf("chatrelay: config: downgrade target %q is not configured", c.Downgrade.To)
		}
	}
	if c.Downgrade.Threshold == 0 {
		c.Downgrade.Threshold = DefaultDowngradeThreshold
	}
	if c.Downgrade.Divisor == 0 {
		c.Downgrade.Divisor = DefaultDowngradeDivisor
	}
	if c.Downgrade.Divisor < 1 {
		return fmt.Errorf("chatrelay: config: downgrade divisor must be at least 1")
	}

	if c.Pacing.Unit == 0 {
		c.Pacing.Unit = DefaultPaceUnit
	}
	if c.Pacing.Unit < 0 {
		return fmt.Errorf("chatrelay: config: pacing unit must not be negative")
	}
	if c.Pacing.TopTierStep == 0 {
		c.Pacing.TopTierStep = DefaultTopTierPaceStep
	}
	if c.Pacing.Step == 0 {
		c.Pacing.Step = DefaultPaceStep
	}

	switch c.Directory.Driver {
	case "", "memory", "redis", "postgres":
	default:
		return fmt.Errorf("chatrelay: config: unknown directory driver %q", c.Directory.Driver)
	}

	return nil
}
