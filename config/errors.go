// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrDebugInProduction  = errors.New("debug mode is not allowed in production")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidPort        = errors.New("invalid port number")
	ErrInvalidMailboxSize = errors.New("invalid mailbox size")
	ErrInvalidTimeout     = errors.New("invalid timeout")
	ErrInvalidRateLimit   = errors.New("invalid rate limit")
	ErrInvalidLedger      = errors.New("invalid ledger configuration")
	ErrInvalidExporter    = errors.New("invalid tracing exporter")
	ErrInvalidSampleRatio = errors.New("invalid sample ratio")
	ErrInvalidStoreFile   = errors.New("invalid store file")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrConfigValidateError = errors.New("configuration validation error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
	ErrUnsupportedFormat   = errors.New("unsupported configuration format")
)
