package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgeforge/os-installer/internal/config/schema"
)

// GlobalConfig carries the installer's own settings, as opposed to the
// per-run install plan the operator builds interactively.
type GlobalConfig struct {
	Logging struct {
		Level    string `yaml:"level"`
		FilePath string `yaml:"filePath"`
	} `yaml:"logging"`
	MountRoot  string `yaml:"mountRoot"`
	DeviceWait struct {
		Attempts int `yaml:"attempts"`
		DelayMs  int `yaml:"delayMs"`
	} `yaml:"deviceWait"`
	MirrorlistURL string `yaml:"mirrorlistUrl"`
}

// DeviceWaitDelay returns the configured poll delay as a duration.
func (c *GlobalConfig) DeviceWaitDelay() time.Duration {
	return time.Duration(c.DeviceWait.DelayMs) * time.Millisecond
}

func defaultGlobalConfig() *GlobalConfig {
	cfg := &GlobalConfig{}
	cfg.Logging.Level = "info"
	cfg.Logging.FilePath = "/var/log/os-installer.log"
	cfg.MountRoot = "/mnt/install"
	cfg.DeviceWait.Attempts = 10
	cfg.DeviceWait.DelayMs = 500
	return cfg
}

var global = defaultGlobalConfig()

// Global returns the active installer configuration.
func Global() *GlobalConfig {
	return global
}

// SetGlobal replaces the active configuration. Called once at startup and
// from tests.
func SetGlobal(cfg *GlobalConfig) {
	global = cfg
}

// configSearchPaths in priority order. The first existing file wins.
var configSearchPaths = []string{
	"os-installer.yml",
	"/etc/os-installer/config.yml",
}

// FindConfigFile locates the configuration file, preferring a file next to
// the binary's working directory over the system-wide one. Empty string
// means no file exists and defaults apply.
func FindConfigFile() string {
	for _, path := range configSearchPaths {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path
			}
			return abs
		}
	}
	return ""
}

// LoadGlobalConfig reads and validates a configuration file, overlaying it
// on the defaults. An empty path returns the defaults untouched.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	cfg := defaultGlobalConfig()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := validateYAML(content, schema.GlobalSchema, "global-schema.json"); err != nil {
		return nil, fmt.Errorf("config file %s is invalid: %w", path, err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
