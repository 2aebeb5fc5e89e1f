// Package config loads liveroom configuration from a TOML file, the
// environment and a .env file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed" // used to embed the default application config file.

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	appName   = "liveroom"
	envPrefix = "liveroom"
)

//go:embed liveroom.toml
var defaultConfigFile []byte

type (
	ServerConfig struct {
		Listen           string   `mapstructure:"listen"`
		Path             string   `mapstructure:"path"`
		AllowedOrigins   []string `mapstructure:"allowed-origins"`
		MaxMessageLength int      `mapstructure:"max-message-length"`
	}

	StorageConfig struct {
		Type string `mapstructure:"type"`
		DSN  string `mapstructure:"dsn"`
		Path string `mapstructure:"path"`
	}

	ReconnectConfig struct {
		Enabled         bool          `mapstructure:"enabled"`
		InitialInterval time.Duration `mapstructure:"initial-interval"`
		MaxInterval     time.Duration `mapstructure:"max-interval"`
		Multiplier      float64       `mapstructure:"multiplier"`
		MaxAttempts     int           `mapstructure:"max-attempts"`
	}

	ClientConfig struct {
		URL            string          `mapstructure:"url"`
		APIURL         string          `mapstructure:"api-url"`
		ConnectTimeout time.Duration   `mapstructure:"connect-timeout"`
		JoinTimeout    time.Duration   `mapstructure:"join-timeout"`
		Reconnect      ReconnectConfig `mapstructure:"reconnect"`
		Username       string          `mapstructure:"username"`
		UserID         int64           `mapstructure:"user-id"`
		Avatar         string          `mapstructure:"avatar"`
		Transports     []string        `mapstructure:"transports"`
	}

	Config struct {
		LogLevel string        `mapstructure:"log-level"`
		Server   ServerConfig  `mapstructure:"server"`
		Storage  StorageConfig `mapstructure:"storage"`
		Client   ClientConfig  `mapstructure:"client"`
	}
)

// LoadDotEnv loads variables from a .env file in the working directory, if
// there is one. Variables already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.Debug("No .env file found")
			return
		}
		logrus.WithError(err).Warn("Failed to load .env file")
	}
}

// InitConfig initializes viper from file, writing the embedded default
// config there first when it does not exist. Environment variables prefixed
// with LIVEROOM_ override file values.
func InitConfig(file string) error {
	viper.SetConfigName(appName)
	viper.SetConfigType("toml")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if file == "" {
		file = DefaultConfigFile()
	}
	viper.SetConfigFile(file)

	if _, err := os.Stat(file); err != nil {
		logrus.WithField("file", file).Info("Config file not found, writing defaults")
		if err := viper.ReadConfig(bytes.NewBuffer(defaultConfigFile)); err != nil {
			return fmt.Errorf("read default config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err := os.WriteFile(file, defaultConfigFile, 0o600); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		return nil
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// Load decodes the active viper configuration and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	switch c.Storage.Type {
	case "memory", "sqlite", "filesystem":
	default:
		return fmt.Errorf("invalid storage.type %q: want memory, sqlite or filesystem", c.Storage.Type)
	}
	if c.Server.MaxMessageLength <= 0 {
		return fmt.Errorf("server.max-message-length must be positive")
	}
	if c.Client.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("client.reconnect.max-attempts must not be negative")
	}
	return nil
}

// DefaultConfigFile is liveroom.toml under the XDG config directory.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, appName+".toml")
}
