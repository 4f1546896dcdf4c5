package chatrelay

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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AZURE_KEY", "secret-key")

	path := writeConfig(t, `
listen: ":9090"
default_model: gpt-3.5-turbo
privileged_groups:
  - grp-research
models:
  - name: gpt-3.5-turbo
    deployment: dep35
    context: 4096
    encoding: cl100k_base
  - name: gpt-4
    deployment: dep4
    context: 8192
    encoding: cl100k_base
    top_tier: true
downgrade:
  model: gpt-4
  to: gpt-3.5-turbo
providers:
  gated:
    endpoint: https://example.openai.azure.com
    api_key: ${AZURE_KEY}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "secret-key", cfg.Providers.Gated.APIKey)

	m, ok := cfg.Model("gpt-4")
	require.True(t, ok)
	assert.Equal(t, "dep4", m.Deployment)
	assert.True(t, m.TopTier)

	// Defaults filled by Validate.
	assert.EqualValues(t, DefaultDowngradeThreshold, cfg.Downgrade.Threshold)
	assert.EqualValues(t, DefaultDowngradeDivisor, cfg.Downgrade.Divisor)
	assert.Equal(t, DefaultPaceUnit, cfg.Pacing.Unit)
	assert.EqualValues(t, DefaultTopTierPaceStep, cfg.Pacing.TopTierStep)
	assert.EqualValues(t, DefaultPaceStep, cfg.Pacing.Step)
}

func TestValidate_NoModels(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.Validate())
}

func TestValidate_DuplicateModel(t *testing.T) {
	cfg := Config{Models: []ModelConfig{
		{Name: "m", Context: 100},
		{Name: "m", Context: 100},
	}}
	assert.ErrorContains(t, cfg.Validate(), "duplicate model")
}

func TestValidate_DowngradeTargetMustExist(t *testing.T) {
	cfg := Config{
		Models:    []ModelConfig{{Name: "m", Context: 100}},
		Downgrade: DowngradeConfig{Model: "m", To: "missing"},
	}
	assert.ErrorContains(t, cfg.Validate(), "downgrade target")
}

func TestValidate_UnknownDefaultModel(t *testing.T) {
	cfg := Config{
		DefaultModel: "missing",
		Models:       []ModelConfig{{Name: "m", Context: 100}},
	}
	assert.ErrorContains(t, cfg.Validate(), "default model")
}

func TestValidate_UnknownDirectoryDriver(t *testing.T) {
	cfg := Config{
		Models:    []ModelConfig{{Name: "m", Context: 100}},
		Directory: DirectoryConfig{Driver: "etcd"},
	}
	assert.ErrorContains(t, cfg.Validate(), "directory driver")
}

func TestValidate_KeepsExplicitPacing(t *testing.T) {
	cfg := Config{
		Models: []ModelConfig{{Name: "m", Context: 100}},
		Pacing: PacingConfig{Unit: 5 * time.Millisecond, TopTierStep: 10, Step: 2},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Millisecond, cfg.Pacing.Unit)
	assert.EqualValues(t, 10, cfg.Pacing.TopTierStep)
	assert.EqualValues(t, 2, cfg.Pacing.Step)
}
