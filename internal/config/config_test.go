package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

type testConfig struct {
	App    App    `mapstructure:"app"`
	Engine Engine `mapstructure:"engine"`
}

func (s *ConfigTestSuite) TestEngineDefaults() {
	cfg, err := Load(&testConfig{}, func(v *viper.Viper) {
		Setup(v, "app")
		SetupEngine(v, "engine")
	})
	s.Require().NoError(err)

	s.Equal(10*time.Second, cfg.App.ShutdownTimeout)
	s.Equal(time.Duration(0), cfg.Engine.Polling.Interval)
	s.True(cfg.Engine.Polling.WhenHidden)
	s.Equal(-1, cfg.Engine.Polling.ErrorRetryCount)
	s.True(cfg.Engine.Refresh.SingleMode)
	s.Equal(128, cfg.Engine.Cache.Size)
	s.Equal("memory", cfg.Engine.Cache.Backend)
	s.Equal(10*time.Minute, cfg.Engine.Cache.TTL)
	s.Equal(5*time.Second, cfg.Engine.FetchTimeout)
}

func (s *ConfigTestSuite) TestEnvOverridesDefault() {
	s.T().Setenv("ENGINE_POLLING_INTERVAL", "250ms")
	s.T().Setenv("ENGINE_POLLING_ERROR_RETRY_COUNT", "3")

	cfg, err := Load(&testConfig{}, func(v *viper.Viper) {
		SetupEngine(v, "engine")
	})
	s.Require().NoError(err)

	s.Equal(250*time.Millisecond, cfg.Engine.Polling.Interval)
	s.Equal(3, cfg.Engine.Polling.ErrorRetryCount)
}

func (s *ConfigTestSuite) TestLoadEnvFile() {
	path := filepath.Join(s.T().TempDir(), "test.env")
	s.Require().NoError(os.WriteFile(path, []byte("REQFLOW_TEST_VALUE=from-file\n"), 0o600))
	s.T().Cleanup(func() { os.Unsetenv("REQFLOW_TEST_VALUE") })

	s.Require().NoError(LoadEnvFile(path))
	s.Equal("from-file", os.Getenv("REQFLOW_TEST_VALUE"))
}

func (s *ConfigTestSuite) TestLoadEnvFileMissing() {
	s.NoError(LoadEnvFile(filepath.Join(s.T().TempDir(), "absent.env")))
	s.NoError(LoadEnvFile(""))
}

func (s *ConfigTestSuite) TestLoadWithEnvFile() {
	path := filepath.Join(s.T().TempDir(), "engine.env")
	s.Require().NoError(os.WriteFile(path, []byte("ENGINE_CACHE_SIZE=7\n"), 0o600))
	s.T().Setenv("APP_ENV_FILE", path)
	s.T().Cleanup(func() { os.Unsetenv("ENGINE_CACHE_SIZE") })

	cfg, err := LoadWithEnvFile(&testConfig{}, func(v *viper.Viper) {
		Setup(v, "app")
		SetupEngine(v, "engine")
	}, func(c *testConfig) string { return c.App.EnvFile })
	s.Require().NoError(err)

	s.Equal(path, cfg.App.EnvFile)
	s.Equal(7, cfg.Engine.Cache.Size)
}

func (s *ConfigTestSuite) TestLoadUnmarshalError() {
	s.T().Setenv("ENGINE_CACHE_SIZE", "many")

	_, err := Load(&testConfig{}, func(v *viper.Viper) {
		SetupEngine(v, "engine")
	})
	s.Require().Error(err)
	s.ErrorIs(err, ErrUnmarshal)
}
