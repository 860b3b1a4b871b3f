// Package config loads razel settings from defaults, the workspace's
// .razel.yaml, RAZEL_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jward/razel/internal/files"
)

const (
	// FileName is the optional per-workspace configuration file.
	FileName = ".razel.yaml"
	// EnvPrefix prefixes environment overrides, e.g. RAZEL_VENDOR_DIR.
	EnvPrefix = "RAZEL"
)

// Config holds the resolved settings. Paths are absolute.
type Config struct {
	IgnoreDevDependency bool   `mapstructure:"ignore_dev_dependency"`
	VendorDir           string `mapstructure:"vendor_dir"`
	DigestFunction      string `mapstructure:"digest_function"`
	LogLevel            string `mapstructure:"log_level"`
	IndexPath           string `mapstructure:"index_path"`

	// File is the configuration file that was read, or "".
	File string `mapstructure:"-"`
}

// DefaultConfig returns the built-in settings, with workspace-relative
// paths.
func DefaultConfig() Config {
	return Config{
		VendorDir:      "external",
		DigestFunction: "sha256",
		LogLevel:       "info",
		IndexPath:      filepath.Join(".razel", "index.db"),
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// WorkspaceRoot anchors relative paths and holds .razel.yaml.
	WorkspaceRoot string
	// Flags, when set, override every other source. Flags are matched to
	// keys by name, e.g. --vendor_dir.
	Flags *pflag.FlagSet
}

// flagNames maps configuration keys to the command-line flags bound to them.
var flagNames = map[string]string{
	"ignore_dev_dependency": "ignore_dev_dependency",
	"vendor_dir":            "vendor_dir",
	"digest_function":       "digest_function",
	"log_level":             "log-level",
	"index_path":            "index_path",
}

// Load resolves the configuration for a workspace.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("config: load canceled: %w", err)
	}

	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("ignore_dev_dependency", defaults.IgnoreDevDependency)
	v.SetDefault("vendor_dir", defaults.VendorDir)
	v.SetDefault("digest_function", defaults.DigestFunction)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("index_path", defaults.IndexPath)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var used string
	if opts.WorkspaceRoot != "" {
		path := filepath.Join(opts.WorkspaceRoot, FileName)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
			used = path
		}
	}

	if opts.Flags != nil {
		for key, name := range flagNames {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.File = used

	if _, err := cfg.Digest(); err != nil {
		return nil, fmt.Errorf("config: digest_function: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, fmt.Errorf("config: log_level: %w", err)
	}
	cfg.VendorDir = anchor(opts.WorkspaceRoot, cfg.VendorDir)
	cfg.IndexPath = anchor(opts.WorkspaceRoot, cfg.IndexPath)
	return &cfg, nil
}

// Digest returns the configured digest function.
func (c *Config) Digest() (files.DigestFunction, error) {
	return files.ParseDigestFunction(c.DigestFunction)
}

// Level returns the configured log level.
func (c *Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

func anchor(root, p string) string {
	if p == "" || filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}
