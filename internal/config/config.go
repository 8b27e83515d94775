package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"loom/internal/conversation"
)

// Config is the application configuration root.
type Config struct {
	Version   string                     `mapstructure:"version" yaml:"version"`
	Server    ServerConfig               `mapstructure:"server" yaml:"server"`
	Provider  ProviderConfig             `mapstructure:"provider" yaml:"provider"`
	Context   conversation.ContextConfig `mapstructure:"context" yaml:"context"`
	Log       LogConfig                  `mapstructure:"log" yaml:"log"`
	Storage   StorageConfig              `mapstructure:"storage" yaml:"storage"`
	Scheduler SchedulerConfig            `mapstructure:"scheduler" yaml:"scheduler"`
	Prompts   PromptsConfig              `mapstructure:"prompts" yaml:"prompts"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port" yaml:"port"`
	Host      string          `mapstructure:"host" yaml:"host"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// ProviderConfig configures the LLM backend.
type ProviderConfig struct {
	Name    string   `mapstructure:"name" yaml:"name"`
	BaseURL string   `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string   `mapstructure:"api_key" yaml:"api_key"`
	Models  []string `mapstructure:"models" yaml:"models,omitempty"`
	Timeout string   `mapstructure:"timeout" yaml:"timeout"`
}

// GetTimeout parses the Timeout field, defaulting to two minutes.
func (c *ProviderConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 2 * time.Minute
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// SchedulerConfig configures background jobs.
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	AutosaveSpec   string `mapstructure:"autosave_spec" yaml:"autosave_spec"`
	JanitorSpec    string `mapstructure:"janitor_spec" yaml:"janitor_spec"`
	StaleBranchTTL string `mapstructure:"stale_branch_ttl" yaml:"stale_branch_ttl"`
}

// GetStaleBranchTTL parses StaleBranchTTL, defaulting to 30 days.
func (c *SchedulerConfig) GetStaleBranchTTL() time.Duration {
	if c.StaleBranchTTL == "" {
		return 30 * 24 * time.Hour
	}
	d, err := time.ParseDuration(c.StaleBranchTTL)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}

// PromptsConfig configures the system prompt preset directory.
type PromptsConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	HotReload bool   `mapstructure:"hot_reload" yaml:"hot_reload"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads configuration with precedence ENV > file > defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("LOOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; a broken one does not.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Context.Normalize()

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the loaded configuration, nil before Load.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// GetString returns a string configuration value by key.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an integer configuration value by key.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a boolean configuration value by key.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set updates a configuration value and persists it when a config file
// path is known.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)
	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current configuration to the loaded file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

func save() error {
	if configPath == "" {
		return errors.New("config: path not set")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	// 0600: the file may hold an API key.
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes a configuration snapshot to the given path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Reset clears the loaded state, mainly for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
