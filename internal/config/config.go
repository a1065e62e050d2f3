package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`

	// Database settings
	DBPath string `mapstructure:"db_path"`

	// Email folder settings
	EmailsPath string `mapstructure:"emails_path"`

	// KeyringPath points to an OpenPGP keyring (armored or binary). Without
	// it signed and encrypted mail is shown as it is.
	KeyringPath string `mapstructure:"keyring_path"`

	// ImportAutocrypt stores keys advertised in Autocrypt headers while
	// indexing. They are listed but never used to verify signatures.
	ImportAutocrypt bool `mapstructure:"import_autocrypt"`

	// Parser settings
	PreferPlain       bool `mapstructure:"prefer_plain"`
	MaxDepth          int  `mapstructure:"max_depth"`
	AttachmentWorkers int  `mapstructure:"attachment_workers"`

	// CacheSize is the number of part lists kept in memory.
	CacheSize int `mapstructure:"cache_size"`

	Debug bool `mapstructure:"debug"`
}

// EnvPrefix prefixes environment overrides, e.g. MAILPARTS_PORT.
const EnvPrefix = "MAILPARTS"

func dataDir() string {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".mailparts")
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Host:              "localhost",
		Port:              "8080",
		DBPath:            filepath.Join(dataDir(), "mail.db"),
		EmailsPath:        "./emails", // Default to ./emails directory
		MaxDepth:          32,
		AttachmentWorkers: 4,
		CacheSize:         128,
	}
}

// Load reads the YAML file at path on top of the defaults and applies
// MAILPARTS_* environment overrides. A missing file is not an error; an
// empty path skips the file.
func Load(path string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("emails_path", def.EmailsPath)
	v.SetDefault("keyring_path", def.KeyringPath)
	v.SetDefault("import_autocrypt", def.ImportAutocrypt)
	v.SetDefault("prefer_plain", def.PreferPlain)
	v.SetDefault("max_depth", def.MaxDepth)
	v.SetDefault("attachment_workers", def.AttachmentWorkers)
	v.SetDefault("cache_size", def.CacheSize)
	v.SetDefault("debug", def.Debug)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server can not run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port is required")
	}
	if c.DBPath == "" {
		return errors.New("config: db_path is required")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("config: max_depth must be positive, got %d", c.MaxDepth)
	}
	if c.AttachmentWorkers < 0 {
		return fmt.Errorf("config: attachment_workers must not be negative, got %d", c.AttachmentWorkers)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("config: cache_size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}
