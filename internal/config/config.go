// Package config loads bladekit settings with Viper from .bladekit.yml,
// BLADEKIT_ environment variables and command-line flags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/bladekit/pkg/view"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// BLADEKIT_SERVER_PORT.
const EnvPrefix = "BLADEKIT"

// EnvKeyReplacer maps nested keys onto environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// FileName is the base name of the config file, searched in the working
// directory.
const FileName = ".bladekit"

type Config struct {
	Views  ViewsConfig  `mapstructure:"views" yaml:"views"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

type ViewsConfig struct {
	Paths      []string `mapstructure:"paths" yaml:"paths"`
	CacheDir   string   `mapstructure:"cache_dir" yaml:"cache_dir"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Django     bool     `mapstructure:"django" yaml:"django"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults applied when a key is unset.
var (
	DefaultPaths    = []string{"./views"}
	DefaultCacheDir = ".bladekit/cache"
	DefaultHost     = "localhost"
	DefaultPort     = 8080
	DefaultDebounce = 300 * time.Millisecond
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("views.paths", DefaultPaths)
	v.SetDefault("views.cache_dir", DefaultCacheDir)
	v.SetDefault("views.extensions", view.DefaultExtensions)
	v.SetDefault("views.django", false)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("watch.debounce", DefaultDebounce)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the global viper instance into a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads v into a validated Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Comma-separated env values arrive as a single string.
	if v.IsSet("views.paths") {
		config.Views.Paths = splitList(v.GetStringSlice("views.paths"))
	}
	if v.IsSet("views.extensions") {
		config.Views.Extensions = splitList(v.GetStringSlice("views.extensions"))
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Address returns host:port for the preview server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateViewsConfig(&config.Views); err != nil {
		return fmt.Errorf("views config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: debounce must not be negative")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: unknown format %q", config.Log.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			return fmt.Errorf("host: %w", err)
		}
	}

	return nil
}

func validateViewsConfig(config *ViewsConfig) error {
	if len(config.Paths) == 0 {
		return fmt.Errorf("at least one view path is required")
	}
	for _, path := range config.Paths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid view path '%s': %w", path, err)
		}
	}

	if config.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if err := validatePath(config.CacheDir); err != nil {
		return fmt.Errorf("invalid cache_dir: %w", err)
	}

	for _, ext := range config.Extensions {
		if strings.ContainsAny(ext, `/\`) || strings.HasPrefix(ext, ".") {
			return fmt.Errorf("invalid extension %q", ext)
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	for _, segment := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if segment == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
