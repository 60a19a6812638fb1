// Package config resolves the settings used by the chronicles CLI.
//
// Sources are applied in order, later ones winning:
//
//  1. Built-in defaults.
//  2. A YAML file, selected with -conf or CHRONICLES_CONFIG.
//  3. CHRONICLES_* environment variables.
//  4. Command-line flags.
//
// Example file:
//
//	host: https://chronicles.example.com
//	api_key: 0f4c...
//	api_version: v1
//	debug: false
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/loggerchronicles/chronicles_sdk_go/pkg/chronicles"
)

const (
	EnvConfig     = "CHRONICLES_CONFIG"
	EnvURL        = "CHRONICLES_API_URL"
	EnvAPIKey     = "CHRONICLES_API_KEY"
	EnvAPIVersion = "CHRONICLES_API_VERSION"
)

// Config holds the CLI settings.
type Config struct {
	Host       string `yaml:"host"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
	Debug      bool   `yaml:"debug"`
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.APIVersion = chronicles.DefaultAPIVersion
}

// LoadFile overlays c with the values present in the YAML file at path.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.APIKey != "" {
		c.APIKey = file.APIKey
	}
	if file.APIVersion != "" {
		c.APIVersion = file.APIVersion
	}
	if file.Debug {
		c.Debug = true
	}
	return nil
}

// LoadEnv overlays c with non-empty CHRONICLES_* variables.
func (c *Config) LoadEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvURL)); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIVersion)); v != "" {
		c.APIVersion = v
	}
}

// Validate checks that the configuration can build a client.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host is required (set -host, " + EnvURL + " or host in the config file)")
	}
	if strings.HasSuffix(c.Host, "/") {
		c.Host = strings.TrimRight(c.Host, "/")
	}
	return nil
}

// ClientConfig converts c into the SDK configuration.
func (c *Config) ClientConfig() chronicles.Config {
	return chronicles.Config{
		Host:       c.Host,
		APIKey:     c.APIKey,
		APIVersion: c.APIVersion,
	}
}
