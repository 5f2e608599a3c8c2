// This file defines the configuration structure for the updater.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the updater.
// It maps directly to the structure of config.yml.
type Config struct {
	Port          int `mapstructure:"port"`
	CheckInterval int `mapstructure:"check_interval"`
	Database      struct {
		Path string `mapstructure:"path"`
		// RetentionDays bounds how long operation history is kept.
		RetentionDays int `mapstructure:"retention_days"`
	} `mapstructure:"database"`
	Paths   Paths   `mapstructure:"paths"`
	Updater Updater `mapstructure:"updater"`
	API     struct {
		TokenHash string `mapstructure:"token_hash"`
	} `mapstructure:"api"`
}

// Paths are the live directories and the updater working directory.
type Paths struct {
	Plugins      string `mapstructure:"plugins"`
	Dependencies string `mapstructure:"dependencies"`
	Updater      string `mapstructure:"updater"`
}

// ManifestFile is the location of the persisted server manifest.
func (p Paths) ManifestFile() string {
	return filepath.Join(p.Updater, "manifest.json")
}

// StagingDir is the root of the add/remove staging tree.
func (p Paths) StagingDir() string {
	return filepath.Join(p.Updater, "tmp")
}

// Updater tunes network, locking and artifact handling.
type Updater struct {
	UserAgent        string `mapstructure:"user_agent"`
	LockTimeout      int    `mapstructure:"lock_timeout"`
	HTTPTimeout      int    `mapstructure:"http_timeout"`
	ModuleExtension  string `mapstructure:"module_extension"`
	DependencyPrefix string `mapstructure:"dependency_prefix"`
	MaxArtifactDepth int    `mapstructure:"max_artifact_depth"`
	Verbose          bool   `mapstructure:"verbose"`
}

// LockWait is the bounded wait for the manifest lock.
func (u Updater) LockWait() time.Duration {
	if u.LockTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(u.LockTimeout) * time.Second
}

// RequestTimeout is the per-request HTTP timeout.
func (u Updater) RequestTimeout() time.Duration {
	if u.HTTPTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(u.HTTPTimeout) * time.Second
}

// Defaults returns a Config populated with the same defaults Load applies,
// rooted at dir. Tests and the CLI use it when no config file is wanted.
func Defaults(dir string) *Config {
	cfg := &Config{
		Port:          8090,
		CheckInterval: 60,
		Paths: Paths{
			Plugins:      filepath.Join(dir, "plugins"),
			Dependencies: filepath.Join(dir, "plugins", "dependencies"),
			Updater:      filepath.Join(dir, "plugins", "AutoUpdater"),
		},
		Updater: Updater{
			UserAgent:        "MangoPluginUpdater",
			LockTimeout:      15,
			HTTPTimeout:      60,
			ModuleExtension:  ".dll",
			DependencyPrefix: "Dependency-",
			MaxArtifactDepth: 8,
		},
	}
	cfg.Database.Path = filepath.Join(dir, "updater.db")
	cfg.Database.RetentionDays = 30
	return cfg
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// UPDATER_PATHS_PLUGINS overrides `paths.plugins`, and so on.
	v.SetEnvPrefix("UPDATER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8090)
	v.SetDefault("check_interval", 60)
	v.SetDefault("database.path", "./updater.db")
	v.SetDefault("database.retention_days", 30)
	v.SetDefault("paths.plugins", "./plugins")
	v.SetDefault("paths.dependencies", "./plugins/dependencies")
	v.SetDefault("paths.updater", "./plugins/AutoUpdater")
	v.SetDefault("updater.user_agent", "MangoPluginUpdater")
	v.SetDefault("updater.lock_timeout", 15)
	v.SetDefault("updater.http_timeout", 60)
	v.SetDefault("updater.module_extension", ".dll")
	v.SetDefault("updater.dependency_prefix", "Dependency-")
	v.SetDefault("updater.max_artifact_depth", 8)
	v.SetDefault("updater.verbose", false)
	v.SetDefault("api.token_hash", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
