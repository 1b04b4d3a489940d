package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".trustiq"
	configFileName = "config.yaml"

	envDBPath       = "TRUSTIQ_DB"
	envRegistryPath = "TRUSTIQ_REGISTRY"
	envLogLevel     = "TRUSTIQ_LOG_LEVEL"
	envFormat       = "TRUSTIQ_FORMAT"
)

// Config is the persisted CLI configuration. Precedence at runtime is
// flag > environment > file > default.
type Config struct {
	DBPath       string `yaml:"db_path"`
	RegistryPath string `yaml:"registry_path"`
	LogLevel     string `yaml:"log_level"`
	Format       string `yaml:"format"`
}

func defaultConfig() Config {
	home := getHomeDir()
	return Config{
		DBPath:       filepath.Join(home, configDirName, "trustiq.db"),
		RegistryPath: filepath.Join(home, configDirName, "registry.json"),
		LogLevel:     "info",
		Format:       formatJSON,
	}
}

func defaultConfigPath() string {
	return filepath.Join(getHomeDir(), configDirName, configFileName)
}

// loadConfig reads the config file, writing the defaults on first run so
// the user has a file to edit.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeConfig(path, cfg); writeErr != nil {
			return Config{}, writeErr
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func writeConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays TRUSTIQ_* environment variables onto the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv(envDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envRegistryPath); v != "" {
		c.RegistryPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envFormat); v != "" {
		c.Format = v
	}
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
