package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"storefront/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("GO_ENV", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.DriverPostgres, cfg.StoreDriver)
	assert.False(t, cfg.IsDev())
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORE_DRIVER", "redis")

	_, err := config.Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadClient_FromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_API_URL", "http://api.test")
	t.Setenv("STOREFRONT_TIMEOUT", "2s")
	t.Setenv("STOREFRONT_MERGE_ATTEMPTS", "5")
	t.Setenv("STOREFRONT_MERGE_BACKOFF", "10ms")
	t.Setenv("STOREFRONT_STATE", "/tmp/x.yaml")

	cfg, err := config.LoadClient(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", cfg.APIBaseURL)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MergeMaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.MergeInitialInterval)
	assert.Equal(t, "/tmp/x.yaml", cfg.StatePath)
}

func TestLoadClient_InvalidAttempts(t *testing.T) {
	t.Setenv("STOREFRONT_MERGE_ATTEMPTS", "0")

	_, err := config.LoadClient(nil)
	assert.ErrorContains(t, err, "STOREFRONT_MERGE_ATTEMPTS")
}

func TestLoadClient_ViperOverridesDefaults(t *testing.T) {
	v := viper.New()
	v.Set(config.KeyAPIURL, "http://flag.test")
	v.Set(config.KeyMergeAttempts, 1)

	cfg, err := config.LoadClient(v)
	require.NoError(t, err)
	assert.Equal(t, "http://flag.test", cfg.APIBaseURL)
	assert.Equal(t, 1, cfg.MergeMaxAttempts)
	assert.Equal(t, config.DefaultClientConfig().RequestTimeout, cfg.RequestTimeout)
}

func TestLoadDotEnv_MissingFileIsIgnored(t *testing.T) {
	err := config.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoadDotEnv_ReadsFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte("STOREFRONT_TEST_KEY=hello\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("STOREFRONT_TEST_KEY") })

	require.NoError(t, config.LoadDotEnv(p))
	assert.Equal(t, "hello", os.Getenv("STOREFRONT_TEST_KEY"))
}
