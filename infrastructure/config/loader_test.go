package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Name    string        `yaml:"name"`
	Port    int           `env:"SAMPLE_PORT"    yaml:"port"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
	Nested  struct {
		Paths []string `env:"SAMPLE_PATHS" yaml:"paths"`
		On    bool     `env:"SAMPLE_ON"    yaml:"on"`
	} `yaml:"nested"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithDefaults_YAMLThenEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_PORT", "9100")
	t.Setenv("SAMPLE_PATHS", "/a, /b")
	t.Setenv("SAMPLE_ON", "yes")

	path := writeConfig(t, "name: site\nport: 8000\ntimeout: 5s\n")

	cfg, err := config.LoadWithDefaults[sampleConfig](path, func(c *sampleConfig) {
		if c.Name == "" {
			c.Name = "default"
		}
		c.Port = 1
	})
	require.NoError(t, err)

	assert.Equal(t, "site", cfg.Name)
	assert.Equal(t, 9100, cfg.Port, "env must win over defaults")
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Nested.Paths)
	assert.True(t, cfg.Nested.On)
}

func TestLoad_MissingFileUsesZeroValue(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_TIMEOUT", "90s")

	cfg, err := config.Load[sampleConfig](filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Name)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	path := writeConfig(t, "port: [unterminated\n")

	_, err := config.Load[sampleConfig](path)
	require.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", config.GetConfigPath("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/resource-cache.yml")
	assert.Equal(t, "/etc/resource-cache.yml", config.GetConfigPath("config.yml"))
}

func TestValidators(t *testing.T) {
	t.Parallel()

	require.NoError(t, config.ValidatePort("port", 8080))

	var vErr *config.ValidationError
	require.ErrorAs(t, config.ValidatePort("port", 0), &vErr)
	assert.Equal(t, "port", vErr.Field)

	require.Error(t, config.ValidateRequired("origin", ""))
	require.NoError(t, config.ValidateLogLevel("debug"))
	require.Error(t, config.ValidateLogLevel("loud"))
	require.NoError(t, config.ValidateOneOf("driver", "redis", "memory", "file", "redis"))
	require.Error(t, config.ValidateOneOf("driver", "s3", "memory", "file", "redis"))
}
