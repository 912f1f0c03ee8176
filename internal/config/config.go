// Package config loads and validates the alcove.yml configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration. Sections map 1:1 to alcove.yml.
type Config struct {
	Server          ServerConfig          `yaml:"Server"`
	Addons          AddonsConfig          `yaml:"Addons"`
	ContainerEngine ContainerEngineConfig `yaml:"ContainerEngine"`
	Auth            AuthConfig            `yaml:"Auth"`
	Log             LogConfig             `yaml:"Log"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"dataDir"`
}

type AddonsConfig struct {
	// Enabled is the global addon flag. When false every addon route
	// answers 503, the catalog included.
	Enabled    *bool  `yaml:"enabled"`
	CatalogDir string `yaml:"catalogDir"`

	InstallTimeout int `yaml:"installTimeout"` // seconds
	StopTimeout    int `yaml:"stopTimeout"`    // seconds
	CallTimeout    int `yaml:"callTimeout"`    // seconds

	MaxProxyBodyBytes int64 `yaml:"maxProxyBodyBytes"`
}

type ContainerEngineConfig struct {
	Sock             string `yaml:"dockersock"`
	Network          string `yaml:"network"`
	StopGraceSeconds int    `yaml:"stopGraceSeconds"`
}

type AuthConfig struct {
	// Tokens maps a user id to its API token.
	Tokens map[string]string `yaml:"tokens"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default values
var (
	defaultPort           = 8725
	defaultDataDir        = "./data"
	defaultCatalogDir     = "./catalog"
	defaultInstallTimeout = 120 // seconds
	defaultStopTimeout    = 60  // seconds
	defaultCallTimeout    = 30  // seconds
	defaultMaxProxyBody   = int64(10 << 20)
	defaultSock           = "/var/run/docker.sock"
	defaultNetwork        = "alcove"
	defaultStopGrace      = 30 // seconds
	defaultLogLevel       = "info"
)

// Load reads the config file at path, fills in defaults, applies env
// overrides and validates the result. A missing file is not an error; the
// defaults plus env land in the returned config.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every field at its default value. Callers
// still have to add at least one auth token before the result validates.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = defaultDataDir
	}
	if c.Addons.Enabled == nil {
		enabled := true
		c.Addons.Enabled = &enabled
	}
	if c.Addons.CatalogDir == "" {
		c.Addons.CatalogDir = defaultCatalogDir
	}
	if c.Addons.InstallTimeout == 0 {
		c.Addons.InstallTimeout = defaultInstallTimeout
	}
	if c.Addons.StopTimeout == 0 {
		c.Addons.StopTimeout = defaultStopTimeout
	}
	if c.Addons.CallTimeout == 0 {
		c.Addons.CallTimeout = defaultCallTimeout
	}
	if c.Addons.MaxProxyBodyBytes == 0 {
		c.Addons.MaxProxyBodyBytes = defaultMaxProxyBody
	}
	if c.ContainerEngine.Sock == "" {
		c.ContainerEngine.Sock = defaultSock
	}
	if c.ContainerEngine.Network == "" {
		c.ContainerEngine.Network = defaultNetwork
	}
	if c.ContainerEngine.StopGraceSeconds == 0 {
		c.ContainerEngine.StopGraceSeconds = defaultStopGrace
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ALCOVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ALCOVE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ALCOVE_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("ALCOVE_CATALOG_DIR"); v != "" {
		c.Addons.CatalogDir = v
	}
	if v := os.Getenv("ALCOVE_ADDONS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALCOVE_ADDONS_ENABLED: %w", err)
		}
		c.Addons.Enabled = &enabled
	}
	if v := os.Getenv("ALCOVE_DOCKER_SOCK"); v != "" {
		c.ContainerEngine.Sock = v
	}
	if v := os.Getenv("ALCOVE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("Server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.DataDir) == "" {
		return fmt.Errorf("Server.dataDir must not be empty")
	}
	if c.Addons.InstallTimeout <= 0 || c.Addons.StopTimeout <= 0 || c.Addons.CallTimeout <= 0 {
		return fmt.Errorf("Addons timeouts must be positive")
	}
	if c.Addons.MaxProxyBodyBytes <= 0 {
		return fmt.Errorf("Addons.maxProxyBodyBytes must be positive")
	}
	if c.ContainerEngine.StopGraceSeconds <= 0 {
		return fmt.Errorf("ContainerEngine.stopGraceSeconds must be positive")
	}
	if len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("Auth.tokens must declare at least one token (run `alcove init`)")
	}
	for user, token := range c.Auth.Tokens {
		if strings.TrimSpace(user) == "" || strings.TrimSpace(token) == "" {
			return fmt.Errorf("Auth.tokens entries must have non-empty user and token")
		}
	}
	return nil
}

// AddonsEnabled reports the resolved global addon flag.
func (c *Config) AddonsEnabled() bool {
	return c.Addons.Enabled != nil && *c.Addons.Enabled
}

// InstallTimeout returns the install deadline as a duration.
func (c *Config) InstallTimeout() time.Duration {
	return time.Duration(c.Addons.InstallTimeout) * time.Second
}

// StopTimeout returns the stop deadline as a duration.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Addons.StopTimeout) * time.Second
}

// CallTimeout returns the proxied-call deadline as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Addons.CallTimeout) * time.Second
}
