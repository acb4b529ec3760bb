package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/imtaco/reqflow/internal/errors"
)

const (
	ErrUnmarshal errors.Code = "config unmarshal failed"
	ErrEnvFile   errors.Code = "env file load failed"
)

// App carries process-wide settings shared by every binary.
type App struct {
	LogConfigFile   string        `mapstructure:"log_config_file"`
	EnvFile         string        `mapstructure:"env_file"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("log_config_file"), "")
	v.SetDefault(p("env_file"), ".env")
	v.SetDefault(p("shutdown_timeout"), "10s")
}

// NewViper maps nested keys onto env names, engine.polling.interval
// becoming ENGINE_POLLING_INTERVAL.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load applies defaults via configure and unmarshals env-backed values into c.
func Load[T any](c *T, configure func(v *viper.Viper)) (*T, error) {
	v := NewViper()
	configure(v)
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrapf(ErrUnmarshal, err, "unmarshal %T", c)
	}
	return c, nil
}

// LoadWithEnvFile loads c once to discover the env file named by envFile,
// exports that file into the process environment and loads again so its
// values take part.
func LoadWithEnvFile[T any](c *T, configure func(v *viper.Viper), envFile func(*T) string) (*T, error) {
	if _, err := Load(c, configure); err != nil {
		return nil, err
	}
	if err := LoadEnvFile(envFile(c)); err != nil {
		return nil, err
	}
	return Load(c, configure)
}

// LoadEnvFile exports key=value pairs from a dotenv file into the process
// environment. A missing file is not an error; existing env vars win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(ErrEnvFile, godotenv.Load(path), "load %s", path)
}
