// Package config loads the user configuration for the valv CLI from
// ~/.config/valvet/config.yaml. A missing file yields defaults; a
// malformed one is an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hemliga/valvet/pkg/crypto"
)

// FileName is the configuration file name inside the config directory.
const FileName = "config.yaml"

// KDF profile names selectable in the configuration.
const (
	ProfileInteractive = "interactive"
	ProfileDefault     = "default"
	ProfileParanoid    = "paranoid"
)

// ErrBadConfig is returned when the file exists but cannot be used.
var ErrBadConfig = errors.New("config: invalid configuration file")

// Config is the parsed user configuration.
type Config struct {
	// VaultPath is the vault used when --vault is not given.
	VaultPath string `yaml:"vault_path"`

	// SessionTimeoutMinutes is the shell inactivity window. Zero keeps
	// the built-in default.
	SessionTimeoutMinutes int `yaml:"session_timeout_minutes"`

	// KDFProfile selects the Argon2id cost: interactive, default, or
	// paranoid.
	KDFProfile string `yaml:"kdf_profile"`

	// AuditDir overrides where audit logs are written. Empty places
	// them next to the vault.
	AuditDir string `yaml:"audit_dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{KDFProfile: ProfileDefault}
}

// Dir returns the configuration directory, honoring XDG_CONFIG_HOME.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot locate config directory: %w", err)
	}
	return filepath.Join(base, "valvet"), nil
}

// Load reads the configuration from the default location. A missing
// file is not an error.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, FileName))
}

// LoadFrom reads and validates the configuration at path.
func LoadFrom(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadConfig, path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadConfig, path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.KDFProfile {
	case "", ProfileInteractive, ProfileDefault, ProfileParanoid:
	default:
		return fmt.Errorf("unknown kdf_profile %q", c.KDFProfile)
	}
	if c.SessionTimeoutMinutes < 0 {
		return fmt.Errorf("session_timeout_minutes must not be negative")
	}
	return nil
}

// SessionTimeout returns the configured inactivity window, zero when
// the built-in default should apply.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// KDFParams maps the configured profile to Argon2id parameters.
func (c *Config) KDFParams() crypto.Params {
	switch c.KDFProfile {
	case ProfileInteractive:
		return crypto.Params{Memory: 32 * 1024, Time: 2, Threads: 4}
	case ProfileParanoid:
		return crypto.Params{Memory: 256 * 1024, Time: 6, Threads: 4}
	default:
		return crypto.Params{
			Memory:  crypto.DefaultMemory,
			Time:    crypto.DefaultTime,
			Threads: crypto.DefaultThreads,
		}
	}
}
