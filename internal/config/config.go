package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/taskscope/internal/search"
)

// Config represents the complete taskscope configuration
type Config struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig controls the HTTP client for the task service
type APIConfig struct {
	// BaseURL is the task service root, e.g. "https://tasks.example.com"
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// TimeoutMs is the per-request timeout in milliseconds
	TimeoutMs int `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	// Token is sent as a bearer token and as the push-channel credential
	Token string `mapstructure:"token" yaml:"token"`
}

// RealtimeConfig controls the push channel
type RealtimeConfig struct {
	// Enabled connects the push channel in watch mode (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// URL is the push-channel root. Empty means derive it from api.base_url.
	URL string `mapstructure:"url" yaml:"url"`
	// ConnectionType selects the channel, e.g. "task" or "chat"
	ConnectionType string `mapstructure:"connection_type" yaml:"connection_type"`
	// Channels are joined by name after connecting
	Channels []string `mapstructure:"channels" yaml:"channels"`
	// SubscribePatterns are glob patterns of channels whose messages are delivered
	SubscribePatterns []string `mapstructure:"subscribe_patterns" yaml:"subscribe_patterns"`
	// ReconnectDelayMs is the wait before reconnecting after a failure (0 = no reconnect)
	ReconnectDelayMs int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
}

// SearchConfig controls query defaults, debouncing and cache invalidation
type SearchConfig struct {
	// DebounceMs is the coalescing window for search triggers (default: 300)
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	// PageSize is the default page size (default: 20)
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
	// SortField is the default sort field (default: "updated_at")
	SortField string `mapstructure:"sort_field" yaml:"sort_field"`
	// SortDirection is "asc" or "desc" (default: "desc")
	SortDirection string `mapstructure:"sort_direction" yaml:"sort_direction"`
	// Invalidation is the cache policy on accepted task changes
	// Options: "all", "scoped"
	Invalidation string `mapstructure:"invalidation" yaml:"invalidation"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where taskscope.log is written. Empty means <config dir>/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus scrape endpoint
type MetricsConfig struct {
	// Enabled serves metrics while watching (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Address is the listen address of the scrape endpoint
	Address string `mapstructure:"address" yaml:"address"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8080",
			TimeoutMs: 10000,
		},
		Realtime: RealtimeConfig{
			Enabled:           true,
			ConnectionType:    "task",
			Channels:          []string{},
			SubscribePatterns: []string{},
			ReconnectDelayMs:  2000,
		},
		Search: SearchConfig{
			DebounceMs:    300,
			PageSize:      search.DefaultPageSize,
			SortField:     search.DefaultSortField,
			SortDirection: string(search.Desc),
			Invalidation:  string(search.InvalidateAll),
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
	}
}

// Timeout returns the request timeout as a time.Duration
func (c *APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ReconnectDelay returns the reconnect delay as a time.Duration (0 means disabled)
func (c *RealtimeConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// ResolvedURL returns URL, falling back to the API base URL.
func (c *RealtimeConfig) ResolvedURL(apiBase string) string {
	if c.URL != "" {
		return c.URL
	}
	return apiBase
}

// Debounce returns the debounce window as a time.Duration
func (c *SearchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Policy returns the configured cache invalidation policy
func (c *SearchConfig) Policy() search.InvalidationPolicy {
	return search.InvalidationPolicy(c.Invalidation)
}

// DefaultQuery returns the query a fresh search starts from
func (c *SearchConfig) DefaultQuery() search.Query {
	q := search.DefaultQuery()
	q.Sort = search.SortConfig{Field: c.SortField, Direction: search.Direction(c.SortDirection)}
	q.Pagination.PageSize = c.PageSize
	return q
}

// ResolvedDir returns Dir, defaulting to <config dir>/logs
func (c *LoggingConfig) ResolvedDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// API defaults
	viper.SetDefault("api.base_url", defaults.API.BaseURL)
	viper.SetDefault("api.timeout_ms", defaults.API.TimeoutMs)
	viper.SetDefault("api.token", defaults.API.Token)

	// Realtime defaults
	viper.SetDefault("realtime.enabled", defaults.Realtime.Enabled)
	viper.SetDefault("realtime.url", defaults.Realtime.URL)
	viper.SetDefault("realtime.connection_type", defaults.Realtime.ConnectionType)
	viper.SetDefault("realtime.channels", defaults.Realtime.Channels)
	viper.SetDefault("realtime.subscribe_patterns", defaults.Realtime.SubscribePatterns)
	viper.SetDefault("realtime.reconnect_delay_ms", defaults.Realtime.ReconnectDelayMs)

	// Search defaults
	viper.SetDefault("search.debounce_ms", defaults.Search.DebounceMs)
	viper.SetDefault("search.page_size", defaults.Search.PageSize)
	viper.SetDefault("search.sort_field", defaults.Search.SortField)
	viper.SetDefault("search.sort_direction", defaults.Search.SortDirection)
	viper.SetDefault("search.invalidation", defaults.Search.Invalidation)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.address", defaults.Metrics.Address)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// Watch reloads the configuration whenever the config file changes and
// passes the result to fn. An invalid edit is reported as an error and the
// caller keeps its previous configuration. Watch is a no-op when no config
// file is in use.
func Watch(fn func(*Config, error)) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(reloadHandler(fn))
	viper.WatchConfig()
}

func reloadHandler(fn func(*Config, error)) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(Load())
	}
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskscope")
	}
	// Fall back to ~/.config/taskscope
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskscope"
	}
	return filepath.Join(home, ".config", "taskscope")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidInvalidationPolicies returns the list of valid search.invalidation values
func ValidInvalidationPolicies() []string {
	return []string{string(search.InvalidateAll), string(search.InvalidateScoped)}
}
