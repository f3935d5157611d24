package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	configData Config
	v          *viper.Viper
)

// Config holds all configuration settings.
type Config struct {
	// TCP server configuration
	Server struct {
		Host string
		Port int
	}
	// HTTP API configuration, empty Addr disables it
	HTTP struct {
		Addr string
	}
	// Cipher engine configuration
	Engine struct {
		Provider string
		PKCS11   struct {
			Library string
			Slot    uint
			Pin     string
		}
	}
	// Calculator registry configuration
	Calculator struct {
		MaxConcurrency int `mapstructure:"max_concurrency"`
	}
	// Logging configuration
	Log struct {
		Level  string
		Format string
	}
}

const defaultConfig = `# EMV Studio Configuration File
server:
  host: localhost
  port: 1600

http:
  addr: ""

engine:
  provider: library
  pkcs11:
    library: ""
    slot: 0
    pin: ""

calculator:
  max_concurrency: 8

log:
  level: info
  format: human
`

// Initialize sets up the configuration system. A non-empty file is read
// instead of searching the default locations.
func Initialize(file string) error {
	v = viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.emvstudio")
		v.AddConfigPath("/etc/emvstudio/")
	}

	setDefaults()

	v.SetEnvPrefix("EMVSTUDIO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if file == "" {
		if err := ensureConfig(); err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// It's okay if we can't find a config file, we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&configData); err != nil {
		return fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults() {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 1600)

	v.SetDefault("http.addr", "")

	v.SetDefault("engine.provider", "library")
	v.SetDefault("engine.pkcs11.library", "")
	v.SetDefault("engine.pkcs11.slot", 0)
	v.SetDefault("engine.pkcs11.pin", "")

	v.SetDefault("calculator.max_concurrency", 8)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		// no home directory, defaults and environment only
		return nil
	}

	dir := filepath.Join(home, ".emvstudio")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}

// Reload decodes the viper state again, picking up flags bound after Initialize.
func Reload() error {
	if v == nil {
		return errors.New("config not initialized")
	}

	return v.Unmarshal(&configData)
}
