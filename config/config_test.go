package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/najoast/catalog/ledger"
)

// TestDefaultConfig checks that the defaults validate
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if config.Ledger.Fees != ledger.DefaultFees() {
		t.Errorf("expected default fees, got %+v", config.Ledger.Fees)
	}
	if got := config.API.ListenAddr(); got != "0.0.0.0:8080" {
		t.Errorf("expected listen addr 0.0.0.0:8080, got %s", got)
	}
	if !config.IsDevelopment() || config.IsProduction() {
		t.Errorf("expected development environment")
	}
	if !config.IsDebugEnabled() {
		t.Errorf("expected debug enabled in development")
	}
	config.App.Environment = EnvProduction
	if config.IsDebugEnabled() {
		t.Errorf("expected debug disabled in production")
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid config", func(*Config) {}, nil},
		{"empty app name", func(c *Config) { c.App.Name = "" }, ErrInvalidAppName},
		{"bad environment", func(c *Config) { c.App.Environment = "moon" }, ErrInvalidEnvironment},
		{"debug in production", func(c *Config) { c.App.Environment = EnvProduction; c.App.Debug = true }, ErrDebugInProduction},
		{"fatal log level", func(c *Config) { c.Log.Level = LogLevelFatal }, nil},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, ErrInvalidLogLevel},
		{"bad log format", func(c *Config) { c.Log.Format = "text" }, ErrInvalidLogFormat},
		{"zero mailbox", func(c *Config) { c.Actor.MailboxSize = 0 }, ErrInvalidMailboxSize},
		{"zero process timeout", func(c *Config) { c.Actor.ProcessTimeout = 0 }, ErrInvalidTimeout},
		{"negative fee", func(c *Config) { c.Ledger.Fees.ComputeFee = -1 }, ledger.ErrInvalidFees},
		{"zero title length", func(c *Config) { c.Ledger.MaxTitleLength = 0 }, ErrInvalidLedger},
		{"no owner wallet", func(c *Config) { c.Ledger.OwnerWallet = "" }, ErrInvalidLedger},
		{"owner cannot fund deploy", func(c *Config) { c.Ledger.OwnerBalance = 0 }, ErrInvalidLedger},
		{"bad port", func(c *Config) { c.API.Port = 70000 }, ErrInvalidPort},
		{"bad port ignored when api disabled", func(c *Config) { c.API.Enabled = false; c.API.Port = -1 }, nil},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, ErrInvalidExporter},
		{"bad sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, ErrInvalidSampleRatio},
		{"store without file", func(c *Config) { c.Store.Enabled = true; c.Store.File = "" }, ErrInvalidStoreFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestLoader tests YAML loading on top of defaults
func TestLoader(t *testing.T) {
	yamlContent := `
app:
  name: test-catalog
  environment: testing
log:
  level: debug
  format: json
ledger:
  max_title_length: 64
  fees:
    service_fee: 0.02
    child_reserve: "0.1"
api:
  port: 9000
  request_timeout: 3s
`
	file := filepath.Join(t.TempDir(), "catalogd.yaml")
	if err := os.WriteFile(file, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	config, err := NewLoader().Load(file)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if config.App.Name != "test-catalog" {
		t.Errorf("expected app name test-catalog, got %s", config.App.Name)
	}
	if config.App.Environment != EnvTesting {
		t.Errorf("expected testing environment, got %s", config.App.Environment)
	}
	if config.Log.Level != LogLevelDebug || config.Log.Format != LogFormatJSON {
		t.Errorf("unexpected log config %+v", config.Log)
	}
	if config.Ledger.MaxTitleLength != 64 {
		t.Errorf("expected max title length 64, got %d", config.Ledger.MaxTitleLength)
	}
	if config.Ledger.Fees.ServiceFee != ledger.MustParseCoins("0.02") {
		t.Errorf("expected service fee 0.02, got %s", config.Ledger.Fees.ServiceFee)
	}
	if config.Ledger.Fees.ChildReserve != ledger.MustParseCoins("0.1") {
		t.Errorf("expected child reserve 0.1, got %s", config.Ledger.Fees.ChildReserve)
	}
	// untouched keys keep their defaults
	if config.Ledger.Fees.ComputeFee != ledger.DefaultFees().ComputeFee {
		t.Errorf("expected default compute fee, got %s", config.Ledger.Fees.ComputeFee)
	}
	if config.API.Port != 9000 || config.API.RequestTimeout != 3*time.Second {
		t.Errorf("unexpected api config %+v", config.API)
	}
	if config.Actor.MailboxSize != DefaultConfig().Actor.MailboxSize {
		t.Errorf("expected default mailbox size, got %d", config.Actor.MailboxSize)
	}
}

// TestLoaderJSON tests JSON loading
func TestLoaderJSON(t *testing.T) {
	jsonContent := `{
  "app": {"name": "json-catalog"},
  "ledger": {"fees": {"forward_fee": "0.002"}},
  "tracing": {"exporter": "stdout", "sample_ratio": 0.5}
}`
	config, err := NewLoader().LoadFromReader(strings.NewReader(jsonContent), FormatJSON)
	if err != nil {
		t.Fatalf("failed to load JSON config: %v", err)
	}
	if config.App.Name != "json-catalog" {
		t.Errorf("expected app name json-catalog, got %s", config.App.Name)
	}
	if config.Ledger.Fees.ForwardFee != ledger.MustParseCoins("0.002") {
		t.Errorf("expected forward fee 0.002, got %s", config.Ledger.Fees.ForwardFee)
	}
	if config.Tracing.Exporter != ExporterStdout || config.Tracing.SampleRatio != 0.5 {
		t.Errorf("unexpected tracing config %+v", config.Tracing)
	}
}

func TestLoaderRejects(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("ledger:\n  fees:\n    compute_fee: lots\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().Load(bad); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("expected parse error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().Load(invalid); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("expected invalid log level, got %v", err)
	}

	if _, err := NewLoader().Load(filepath.Join(dir, "config.toml")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected unsupported format, got %v", err)
	}
}

// TestEnvironmentOverrides tests environment variable overrides
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CATALOG_APP_NAME", "env-catalog")
	t.Setenv("CATALOG_API_PORT", "7777")
	t.Setenv("CATALOG_LOG_LEVEL", "error")
	t.Setenv("CATALOG_LEDGER_FEES_SERVICE_FEE", "0.03")
	t.Setenv("CATALOG_LEDGER_MAX_TITLE_LENGTH", "32")
	t.Setenv("CATALOG_STORE_SAVE_INTERVAL", "1m")

	config, err := NewLoader().Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if config.App.Name != "env-catalog" {
		t.Errorf("expected app name env-catalog, got %s", config.App.Name)
	}
	if config.API.Port != 7777 {
		t.Errorf("expected port 7777, got %d", config.API.Port)
	}
	if config.Log.Level != LogLevelError {
		t.Errorf("expected log level error, got %s", config.Log.Level)
	}
	if config.Ledger.Fees.ServiceFee != ledger.MustParseCoins("0.03") {
		t.Errorf("expected service fee 0.03, got %s", config.Ledger.Fees.ServiceFee)
	}
	if config.Ledger.MaxTitleLength != 32 {
		t.Errorf("expected max title length 32, got %d", config.Ledger.MaxTitleLength)
	}
	if config.Store.SaveInterval != time.Minute {
		t.Errorf("expected save interval 1m, got %s", config.Store.SaveInterval)
	}
}

func TestEnvironmentOverrideInvalid(t *testing.T) {
	t.Setenv("CATALOG_API_PORT", "eighty")
	if _, err := NewLoader().Load(""); !errors.Is(err, ErrEnvironmentVarError) {
		t.Fatalf("expected environment error, got %v", err)
	}
}

// TestAutoLoad tests configuration discovery
func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader().SetSearchPaths([]string{dir})

	config, err := loader.AutoLoad()
	if err != nil {
		t.Fatalf("AutoLoad without a file failed: %v", err)
	}
	if config.App.Name != DefaultConfig().App.Name {
		t.Errorf("expected default app name, got %s", config.App.Name)
	}

	if err := os.WriteFile(filepath.Join(dir, "catalogd.yml"), []byte("app:\n  name: found\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err = loader.AutoLoad()
	if err != nil {
		t.Fatalf("AutoLoad failed: %v", err)
	}
	if config.App.Name != "found" {
		t.Errorf("expected app name found, got %s", config.App.Name)
	}
}

// TestWatcher tests configuration file watching
func TestWatcher(t *testing.T) {
	file := filepath.Join(t.TempDir(), "catalogd.yaml")
	if err := os.WriteFile(file, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewWatcher(file, NewLoader(), nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.debounce = 10 * time.Millisecond

	var changed atomic.Value
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		changed.Store(newConfig.Log.Level)
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(file, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := changed.Load().(LogLevel); v == LogLevelWarn {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if v, _ := changed.Load().(LogLevel); v != LogLevelWarn {
		t.Fatalf("expected callback with level warn, got %q", v)
	}
	if watcher.GetConfig().Log.Level != LogLevelWarn {
		t.Errorf("expected current level warn, got %s", watcher.GetConfig().Log.Level)
	}
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "catalogd.yaml")
	if err := os.WriteFile(file, []byte("ledger:\n  fees:\n    service_fee: 0.02\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	watcher, err := NewWatcher(file, NewLoader(), nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(file, []byte("ledger:\n  fees:\n    compute_fee: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := watcher.Reload(); err == nil {
		t.Fatal("expected reload to fail")
	}
	if got := watcher.GetConfig().Ledger.Fees.ServiceFee; got != ledger.MustParseCoins("0.02") {
		t.Errorf("expected previous service fee to survive, got %s", got)
	}
}

func TestWatcherSkipsUnchangedReload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "catalogd.yaml")
	if err := os.WriteFile(file, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	watcher, err := NewWatcher(file, NewLoader(), nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	calls := 0
	watcher.OnConfigChange(func(_, _ *Config) { calls++ })

	if err := watcher.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no callback for an unchanged file, got %d", calls)
	}

	if err := os.WriteFile(file, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := watcher.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one callback, got %d", calls)
	}
}

func TestRuntimeChanges(t *testing.T) {
	prev := DefaultConfig()
	next := DefaultConfig()
	if got := RuntimeChanges(prev, next); len(got) != 0 {
		t.Errorf("expected no changes, got %v", got)
	}

	next.Ledger.Fees.ForwardFee = ledger.MustParseCoins("0.002")
	next.Log.Level = LogLevelError
	next.API.Port = 9090
	got := RuntimeChanges(prev, next)
	if len(got) != 2 || got[0] != "ledger.fees" || got[1] != "log.level" {
		t.Errorf("expected [ledger.fees log.level], got %v", got)
	}
}
