package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/eniac111/oct/internal/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything needed to build a playbook client.
type Config struct {
	Inventory       string      `yaml:"inventory"`
	Verbosity       int         `yaml:"verbosity"`
	DryRun          bool        `yaml:"dry_run"`
	LogDirectory    string      `yaml:"log_directory"`
	PlaybookBinary  string      `yaml:"playbook_binary"`
	CallbackPlugins string      `yaml:"callback_plugins"`
	Remote          *types.Host `yaml:"remote,omitempty"`
}

// DefaultConfig returns the default configuration. An empty inventory means
// the client picks its built-in default.
func DefaultConfig() *Config {
	return &Config{
		Verbosity:      1,
		PlaybookBinary: "ansible-playbook",
	}
}

// Files searched, in order, when no config path is given.
var searchPaths = []string{"oct.yaml", ".oct.yaml"}

// Load reads configuration from path, or from the first default file found
// when path is empty, then applies environment overrides. A .env file in the
// working directory is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		for _, name := range searchPaths {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", name, err)
			}
			data = nil
		}
	}

	if path != "" && data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("OCT_INVENTORY"); v != "" {
		c.Inventory = v
	}
	if v := os.Getenv("OCT_VERBOSITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OCT_VERBOSITY %q: %w", v, err)
		}
		c.Verbosity = n
	}
	if v := os.Getenv("OCT_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OCT_DRY_RUN %q: %w", v, err)
		}
		c.DryRun = b
	}
	if v := os.Getenv("OCT_LOG_DIR"); v != "" {
		c.LogDirectory = v
	}
	if v := os.Getenv("OCT_PLAYBOOK_BINARY"); v != "" {
		c.PlaybookBinary = v
	}
	if v := os.Getenv("OCT_CALLBACK_PLUGINS"); v != "" {
		c.CallbackPlugins = v
	}
	return nil
}

// Validate rejects settings the client cannot act on.
func (c *Config) Validate() error {
	if c.Verbosity < 0 {
		return fmt.Errorf("verbosity must not be negative, got %d", c.Verbosity)
	}
	if c.PlaybookBinary == "" {
		return fmt.Errorf("playbook_binary must not be empty")
	}
	if c.Remote != nil {
		if c.Remote.Name == "" {
			return fmt.Errorf("remote.name is required")
		}
		if c.Remote.User == "" {
			return fmt.Errorf("remote.user is required")
		}
	}
	return nil
}
