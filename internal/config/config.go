// Package config provides configuration management for vaultsync.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the configuration for the vaultsync client.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\vaultsync\config
//   - Unix: ~/.config/vaultsync/config
//
// INI format:
//
//	[server]
//	url = https://cloud.example.com
//	username = alice
//	app_password = <token>
//
//	[upload]
//	temp_dir =
//	lock_retry_delay_seconds = 5
//	lock_retry_ceiling_minutes = 5
//	call_timeout_seconds = 30
type Config struct {
	// Server connection settings
	ServerURL   string `ini:"url"`
	Username    string `ini:"username"`
	AppPassword string `ini:"app_password"`

	// Upload coordination settings
	Upload UploadConfig
}

// UploadConfig contains tuning knobs for the encrypted-upload coordinator.
type UploadConfig struct {
	// TempDir is where ciphertext files are staged before transfer.
	// Empty means the system temp directory.
	TempDir string `ini:"temp_dir"`

	// LockRetryDelaySeconds is the fixed delay between folder lock attempts.
	// Default: 5
	LockRetryDelaySeconds int `ini:"lock_retry_delay_seconds"`

	// LockRetryCeilingMinutes bounds how long a task keeps retrying the lock,
	// measured from the first attempt. Default: 5
	LockRetryCeilingMinutes int `ini:"lock_retry_ceiling_minutes"`

	// CallTimeoutSeconds bounds each individual remote call. Default: 30
	CallTimeoutSeconds int `ini:"call_timeout_seconds"`
}

// Validation errors
var (
	ErrMissingServerURL = errors.New("server url is required")
	ErrMissingUsername  = errors.New("username is required")
	ErrMissingPassword  = errors.New("app_password is required")
	ErrInvalidRetry     = errors.New("lock_retry_delay_seconds must be between 1 and 60")
	ErrInvalidCeiling   = errors.New("lock_retry_ceiling_minutes must be between 1 and 60")
	ErrInvalidTimeout   = errors.New("call_timeout_seconds must be between 1 and 600")
)

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "vaultsync")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "vaultsync")
	}

	return filepath.Join(configDir, "config"), nil
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Upload: UploadConfig{
			LockRetryDelaySeconds:   5,
			LockRetryCeilingMinutes: 5,
			CallTimeoutSeconds:      30,
		},
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	server := iniFile.Section("server")
	cfg.ServerURL = server.Key("url").String()
	cfg.Username = server.Key("username").String()
	cfg.AppPassword = server.Key("app_password").String()

	upload := iniFile.Section("upload")
	cfg.Upload.TempDir = upload.Key("temp_dir").String()
	cfg.Upload.LockRetryDelaySeconds = upload.Key("lock_retry_delay_seconds").MustInt(5)
	cfg.Upload.LockRetryCeilingMinutes = upload.Key("lock_retry_ceiling_minutes").MustInt(5)
	cfg.Upload.CallTimeoutSeconds = upload.Key("call_timeout_seconds").MustInt(30)

	return cfg, nil
}

// Save saves configuration to an INI file.
// Creates parent directories if they don't exist.
// The app password is stored in the file - ensure appropriate file permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	server := iniFile.Section("server")
	server.Key("url").SetValue(cfg.ServerURL)
	server.Key("username").SetValue(cfg.Username)
	server.Key("app_password").SetValue(cfg.AppPassword)

	upload := iniFile.Section("upload")
	upload.Key("temp_dir").SetValue(cfg.Upload.TempDir)
	upload.Key("lock_retry_delay_seconds").SetValue(fmt.Sprintf("%d", cfg.Upload.LockRetryDelaySeconds))
	upload.Key("lock_retry_ceiling_minutes").SetValue(fmt.Sprintf("%d", cfg.Upload.LockRetryCeilingMinutes))
	upload.Key("call_timeout_seconds").SetValue(fmt.Sprintf("%d", cfg.Upload.CallTimeoutSeconds))

	if err := iniFile.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return os.Chmod(path, 0o600)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrMissingServerURL
	}
	if c.Username == "" {
		return ErrMissingUsername
	}
	if c.AppPassword == "" {
		return ErrMissingPassword
	}
	if c.Upload.LockRetryDelaySeconds < 1 || c.Upload.LockRetryDelaySeconds > 60 {
		return ErrInvalidRetry
	}
	if c.Upload.LockRetryCeilingMinutes < 1 || c.Upload.LockRetryCeilingMinutes > 60 {
		return ErrInvalidCeiling
	}
	if c.Upload.CallTimeoutSeconds < 1 || c.Upload.CallTimeoutSeconds > 600 {
		return ErrInvalidTimeout
	}
	return nil
}

// LockRetryDelay returns the configured lock retry delay.
func (c *Config) LockRetryDelay() time.Duration {
	return time.Duration(c.Upload.LockRetryDelaySeconds) * time.Second
}

// LockRetryCeiling returns the configured lock retry budget.
func (c *Config) LockRetryCeiling() time.Duration {
	return time.Duration(c.Upload.LockRetryCeilingMinutes) * time.Minute
}

// CallTimeout returns the configured per-call timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Upload.CallTimeoutSeconds) * time.Second
}
