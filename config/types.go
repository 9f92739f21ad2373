// Package config provides configuration management for the catalog daemon
package config

import (
	"fmt"
	"time"

	"github.com/najoast/catalog/ledger"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// Log formats
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Tracing exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config represents the complete daemon configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Actor runtime configuration
	Actor ActorConfig `yaml:"actor" json:"actor"`

	// Fees, limits and genesis accounts
	Ledger LedgerConfig `yaml:"ledger" json:"ledger"`

	// HTTP gateway
	API APIConfig `yaml:"api" json:"api"`

	// Metrics endpoint
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// OpenTelemetry export
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	// Actor state persistence
	Store StoreConfig `yaml:"store" json:"store"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, console)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable colored output for the console format
	Color bool `yaml:"color" json:"color"`

	// Log rotation configuration, used when Output is a file
	Rotation LogRotationConfig `yaml:"rotation" json:"rotation"`
}

// LogRotationConfig contains log rotation settings
type LogRotationConfig struct {
	// Enable log rotation
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Maximum file size in MB
	MaxSize int `yaml:"max_size" json:"max_size" split_words:"true"`

	// Maximum number of old files to retain
	MaxBackups int `yaml:"max_backups" json:"max_backups" split_words:"true"`

	// Maximum age in days
	MaxAge int `yaml:"max_age" json:"max_age" split_words:"true"`

	// Compress old files
	Compress bool `yaml:"compress" json:"compress"`
}

// ActorConfig contains actor runtime configuration
type ActorConfig struct {
	// Initial mailbox capacity; mailboxes grow past it
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size" split_words:"true"`

	// Upper bound for a single handler invocation
	ProcessTimeout time.Duration `yaml:"process_timeout" json:"process_timeout" split_words:"true"`

	// How long shutdown waits for in-flight operations
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" split_words:"true"`
}

// LedgerConfig prices message processing and funds the genesis accounts
type LedgerConfig struct {
	// Fee schedule
	Fees ledger.FeeSchedule `yaml:"fees" json:"fees"`

	// Longest accepted title, in bytes
	MaxTitleLength int `yaml:"max_title_length" json:"max_title_length" split_words:"true"`

	// Wallet that owns and deploys the catalog
	OwnerWallet string `yaml:"owner_wallet" json:"owner_wallet" split_words:"true"`

	// Balance minted for the owner wallet
	OwnerBalance ledger.Coins `yaml:"owner_balance" json:"owner_balance" split_words:"true"`

	// Value attached to the catalog deploy message
	DeployValue ledger.Coins `yaml:"deploy_value" json:"deploy_value" split_words:"true"`

	// Balance minted for wallets the gateway opens on demand
	WalletFunding ledger.Coins `yaml:"wallet_funding" json:"wallet_funding" split_words:"true"`
}

// APIConfig contains HTTP gateway settings
type APIConfig struct {
	// Enable the gateway
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listening address
	Address string `yaml:"address" json:"address"`

	// Listening port
	Port int `yaml:"port" json:"port"`

	// How long a request waits for its operation to settle
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" split_words:"true"`

	// Read timeout
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout" split_words:"true"`

	// Write timeout
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" split_words:"true"`

	// Submissions per second across all callers, zero disables limiting
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" split_words:"true"`

	// Burst allowed above RateLimit
	RateBurst int `yaml:"rate_burst" json:"rate_burst" split_words:"true"`
}

// ListenAddr returns host:port for the gateway listener
func (c APIConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// MonitorConfig contains monitoring configuration
type MonitorConfig struct {
	// Enable metrics collection
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Metrics endpoint path on the gateway
	MetricsPath string `yaml:"metrics_path" json:"metrics_path" split_words:"true"`

	// Health endpoint path on the gateway
	HealthPath string `yaml:"health_path" json:"health_path" split_words:"true"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	// Exporter: none, stdout or otlp
	Exporter string `yaml:"exporter" json:"exporter"`

	// OTLP gRPC endpoint
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Disable TLS towards the OTLP endpoint
	Insecure bool `yaml:"insecure" json:"insecure"`

	// Fraction of operations sampled
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" split_words:"true"`
}

// StoreConfig contains persistence settings
type StoreConfig struct {
	// Enable the SQLite snapshot store
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Database file
	File string `yaml:"file" json:"file"`

	// Periodic snapshot interval, zero saves only on shutdown
	SaveInterval time.Duration `yaml:"save_interval" json:"save_interval" split_words:"true"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "catalogd",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       true,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatConsole,
			Output: "stdout",
			Color:  true,
			Rotation: LogRotationConfig{
				Enabled:    false,
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     7,
				Compress:   true,
			},
		},
		Actor: ActorConfig{
			MailboxSize:     64,
			ProcessTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			Fees:           ledger.DefaultFees(),
			MaxTitleLength: 128,
			OwnerWallet:    "owner",
			OwnerBalance:   ledger.MustParseCoins("1000"),
			DeployValue:    ledger.MustParseCoins("1"),
			WalletFunding:  ledger.MustParseCoins("100"),
		},
		API: APIConfig{
			Enabled:        true,
			Address:        "0.0.0.0",
			Port:           8080,
			RequestTimeout: 10 * time.Second,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			RateLimit:      100,
			RateBurst:      200,
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			HealthPath:  "/healthz",
		},
		Tracing: TracingConfig{
			Exporter:    ExporterNone,
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1,
		},
		Store: StoreConfig{
			Enabled:      false,
			File:         "catalog.db",
			SaveInterval: 0,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}
	if c.IsProduction() && c.App.Debug {
		return ErrDebugInProduction
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != LogFormatJSON && c.Log.Format != LogFormatConsole {
		return ErrInvalidLogFormat
	}

	// Validate actor config
	if c.Actor.MailboxSize <= 0 {
		return ErrInvalidMailboxSize
	}
	if c.Actor.ProcessTimeout <= 0 {
		return ErrInvalidTimeout
	}

	// Validate ledger config
	if err := c.Ledger.Fees.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLedger, err)
	}
	if c.Ledger.MaxTitleLength <= 0 {
		return fmt.Errorf("%w: max_title_length must be positive", ErrInvalidLedger)
	}
	if c.Ledger.OwnerWallet == "" {
		return fmt.Errorf("%w: owner_wallet is required", ErrInvalidLedger)
	}
	if c.Ledger.OwnerBalance < c.Ledger.DeployValue {
		return fmt.Errorf("%w: owner_balance %s cannot fund deploy_value %s",
			ErrInvalidLedger, c.Ledger.OwnerBalance, c.Ledger.DeployValue)
	}

	// Validate api config
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return ErrInvalidPort
	}
	if c.API.RateLimit < 0 || (c.API.RateLimit > 0 && c.API.RateBurst <= 0) {
		return ErrInvalidRateLimit
	}

	// Validate tracing config
	switch c.Tracing.Exporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return ErrInvalidExporter
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	// Validate store config
	if c.Store.Enabled && c.Store.File == "" {
		return ErrInvalidStoreFile
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
