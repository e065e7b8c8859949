package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Render   RenderConfig   `mapstructure:"render"`
	Persist  PersistConfig  `mapstructure:"persist"`
	Blob     BlobConfig     `mapstructure:"blob"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// RelayConfig holds the relay server configuration
type RelayConfig struct {
	Listen  string        `mapstructure:"listen"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// UpstreamConfig holds the upstream generative service configuration
type UpstreamConfig struct {
	URL          string        `mapstructure:"url"`
	Model        string        `mapstructure:"model"`
	ImageModel   string        `mapstructure:"image_model"`
	RouterModel  string        `mapstructure:"router_model"`
	Temperature  float64       `mapstructure:"temperature"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// RenderConfig holds display pacing configuration
type RenderConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Instant  bool          `mapstructure:"instant"`
}

// PersistConfig holds durable store configuration
type PersistConfig struct {
	Path     string        `mapstructure:"path"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// BlobConfig holds object store configuration
type BlobConfig struct {
	Directory string `mapstructure:"directory"`
}

var global *Config

// DefaultSettingsDir returns the directory holding settings, logs and
// durable data. Nothing is created here.
func DefaultSettingsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".strand"
	}
	return filepath.Join(home, ".strand")
}

// BuildSettingsPath resolves a filename relative to the settings directory
func BuildSettingsPath(filename string) string {
	return filepath.Join(DefaultSettingsDir(), filename)
}

func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.log_file", "strand.log")
	viper.SetDefault("logging.preserve", false)

	viper.SetDefault("relay.listen", ":8315")
	viper.SetDefault("relay.base_url", "http://localhost:8315")
	viper.SetDefault("relay.timeout", 5*time.Minute)

	viper.SetDefault("upstream.url", "http://localhost:11434")
	viper.SetDefault("upstream.model", "llama3.2")
	viper.SetDefault("upstream.image_model", "")
	viper.SetDefault("upstream.router_model", "")
	viper.SetDefault("upstream.temperature", 0.7)
	viper.SetDefault("upstream.system_prompt", "")
	viper.SetDefault("upstream.timeout", 4*time.Minute)

	viper.SetDefault("render.interval", 33*time.Millisecond)
	viper.SetDefault("render.instant", false)

	viper.SetDefault("persist.path", BuildSettingsPath("conversations.db"))
	viper.SetDefault("persist.debounce", 2*time.Second)

	viper.SetDefault("blob.directory", BuildSettingsPath("artifacts"))
}

// Load reads configuration from the given file (optional), environment
// variables prefixed with STRAND_, and defaults, in that precedence order.
func Load(cfgFile string) error {
	setDefaults()

	viper.SetEnvPrefix("STRAND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("settings")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultSettingsDir())
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	global = cfg
	return nil
}

// Get returns the global configuration. If Load was never called the
// defaults are materialized, which keeps library consumers and tests
// working without a config file.
func Get() *Config {
	if global == nil {
		setDefaults()
		cfg := &Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return &Config{}
		}
		global = cfg
	}
	return global
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	global = nil
	viper.Reset()
}
