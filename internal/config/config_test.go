package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/taskscope/internal/search"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.API.TimeoutMs != 10000 {
		t.Errorf("API.TimeoutMs = %d, want 10000", cfg.API.TimeoutMs)
	}
	if cfg.Realtime.ConnectionType != "task" {
		t.Errorf("Realtime.ConnectionType = %q, want %q", cfg.Realtime.ConnectionType, "task")
	}
	if !cfg.Realtime.Enabled {
		t.Error("Realtime.Enabled should be true by default")
	}
	if cfg.Search.DebounceMs != 300 {
		t.Errorf("Search.DebounceMs = %d, want 300", cfg.Search.DebounceMs)
	}
	if cfg.Search.PageSize != 20 {
		t.Errorf("Search.PageSize = %d, want 20", cfg.Search.PageSize)
	}
	if cfg.Search.SortField != "updated_at" || cfg.Search.SortDirection != "desc" {
		t.Errorf("Search sort = %s %s, want updated_at desc", cfg.Search.SortField, cfg.Search.SortDirection)
	}
	if cfg.Search.Invalidation != "all" {
		t.Errorf("Search.Invalidation = %q, want %q", cfg.Search.Invalidation, "all")
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false by default")
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate, got %v", errs)
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	if got := cfg.API.Timeout(); got != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", got)
	}
	if got := cfg.Search.Debounce(); got != 300*time.Millisecond {
		t.Errorf("Debounce() = %v, want 300ms", got)
	}
	if got := cfg.Realtime.ReconnectDelay(); got != 2*time.Second {
		t.Errorf("ReconnectDelay() = %v, want 2s", got)
	}
}

func TestSearchConfig_DefaultQuery(t *testing.T) {
	sc := SearchConfig{PageSize: 50, SortField: "created_at", SortDirection: "asc", Invalidation: "scoped"}
	q := sc.DefaultQuery()

	if q.Pagination.PageSize != 50 || q.Pagination.Page != 1 {
		t.Errorf("Pagination = %+v, want page 1 size 50", q.Pagination)
	}
	if q.Sort.Field != "created_at" || q.Sort.Direction != search.Asc {
		t.Errorf("Sort = %+v", q.Sort)
	}
	if q.Filter.Status == nil {
		t.Error("Filter.Status should be empty, not nil")
	}
	if sc.Policy() != search.InvalidateScoped {
		t.Errorf("Policy() = %q, want scoped", sc.Policy())
	}
}

func TestRealtimeConfig_ResolvedURL(t *testing.T) {
	rc := RealtimeConfig{}
	if got := rc.ResolvedURL("https://api.example.com"); got != "https://api.example.com" {
		t.Errorf("ResolvedURL() = %q, want api base", got)
	}
	rc.URL = "wss://push.example.com"
	if got := rc.ResolvedURL("https://api.example.com"); got != "wss://push.example.com" {
		t.Errorf("ResolvedURL() = %q, want explicit url", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/taskscope" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/taskscope")
		}
		if got := ConfigFile(); got != "/custom/config/taskscope/config.yaml" {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		want := filepath.Join(home, ".config", "taskscope")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestLoggingConfig_ResolvedDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	lc := LoggingConfig{}
	if got := lc.ResolvedDir(); got != "/xdg/taskscope/logs" {
		t.Errorf("ResolvedDir() = %q", got)
	}
	lc.Dir = "/var/log/ts"
	if got := lc.ResolvedDir(); got != "/var/log/ts" {
		t.Errorf("ResolvedDir() = %q", got)
	}
}

func TestLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()
	viper.Set("search.debounce_ms", 150)
	viper.Set("realtime.channels", []string{"ops"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.DebounceMs != 150 {
		t.Errorf("Search.DebounceMs = %d, want 150", cfg.Search.DebounceMs)
	}
	if len(cfg.Realtime.Channels) != 1 || cfg.Realtime.Channels[0] != "ops" {
		t.Errorf("Realtime.Channels = %v, want [ops]", cfg.Realtime.Channels)
	}

	viper.Set("search.invalidation", "sometimes")
	if _, err := Load(); err == nil {
		t.Error("Load() should fail for an invalid invalidation policy")
	}
	if got := Get(); got.Search.Invalidation != "all" {
		t.Errorf("Get() should fall back to defaults, got invalidation %q", got.Search.Invalidation)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `api:
  base_url: https://tasks.example.com
search:
  debounce_ms: 120
  invalidation: scoped
realtime:
  subscribe_patterns: ["project-*"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	SetDefaults()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://tasks.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Search.Policy() != search.InvalidateScoped {
		t.Errorf("Policy() = %q, want scoped", cfg.Search.Policy())
	}
	if cfg.Search.PageSize != 20 {
		t.Errorf("Search.PageSize = %d, want default 20", cfg.Search.PageSize)
	}
}

func TestReloadHandler(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	var got *Config
	var gotErr error
	calls := 0
	h := reloadHandler(func(c *Config, err error) {
		calls++
		got, gotErr = c, err
	})

	h(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Chmod})
	if calls != 0 {
		t.Fatalf("chmod should not trigger a reload, calls = %d", calls)
	}

	viper.Set("search.debounce_ms", 75)
	h(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Write})
	if calls != 1 || gotErr != nil || got.Search.DebounceMs != 75 {
		t.Errorf("reload = (%+v, %v) after %d calls, want debounce 75", got, gotErr, calls)
	}

	viper.Set("search.page_size", 0)
	h(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Create})
	if gotErr == nil || got != nil {
		t.Errorf("invalid reload should report an error, got (%v, %v)", got, gotErr)
	}
}

func TestWatch_NoConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	// Must return without starting a watcher.
	Watch(func(*Config, error) { t.Error("callback should not run") })
}
