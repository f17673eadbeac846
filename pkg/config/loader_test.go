package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/config"
)

type sampleConfig struct {
	Name    string        `env:"CFG_TEST_NAME" envDefault:"billing"`
	Workers int           `env:"CFG_TEST_WORKERS" envDefault:"4"`
	TTL     time.Duration `env:"CFG_TEST_TTL" envDefault:"5s"`
}

type requiredConfig struct {
	URL string `env:"CFG_TEST_REQUIRED_URL,required"`
}

type prefixedConfig struct {
	URL string `env:"URL"`
}

type fileConfig struct {
	FromFile string `env:"CFG_TEST_FROM_FILE"`
	Override string `env:"CFG_TEST_OVERRIDE"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg sampleConfig
	require.NoError(t, config.Load(&cfg, config.WithOptionalEnvFiles("does-not-exist.env")))
	assert.Equal(t, "billing", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.TTL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CFG_TEST_NAME", "metering")
	t.Setenv("CFG_TEST_WORKERS", "8")
	t.Setenv("CFG_TEST_TTL", "1m")

	var cfg sampleConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "metering", cfg.Name)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.TTL)
}

func TestLoad_Required(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	require.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_Prefix(t *testing.T) {
	t.Setenv("BILLING_URL", "postgres://x")

	var cfg prefixedConfig
	require.NoError(t, config.Load(&cfg, config.WithPrefix("BILLING_")))
	assert.Equal(t, "postgres://x", cfg.URL)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CFG_TEST_FROM_FILE=file\nCFG_TEST_OVERRIDE=file\n"), 0o600))

	t.Setenv("CFG_TEST_OVERRIDE", "process")
	t.Cleanup(func() { _ = os.Unsetenv("CFG_TEST_FROM_FILE") })

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg, config.WithEnvFiles(path)))
	assert.Equal(t, "file", cfg.FromFile)
	assert.Equal(t, "process", cfg.Override)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	var cfg sampleConfig
	err := config.Load(&cfg, config.WithEnvFiles(filepath.Join(t.TempDir(), "missing.env")))
	require.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *sampleConfig
	require.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
