// Package config handles the engine process's ambient configuration:
// logging, exchange credentials, reconnect/backoff timings and the
// telemetry endpoint. It is deliberately separate from system.SystemConfig,
// which describes the trading domain (exchanges and instruments to index)
// and is loaded from JSON rather than YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration structure.
type Config struct {
	App         AppConfig                 `yaml:"app"`
	Exchanges   map[string]ExchangeConfig `yaml:"exchanges"`
	System      SystemConfig              `yaml:"system"`
	Timing      TimingConfig              `yaml:"timing"`
	Concurrency ConcurrencyConfig         `yaml:"concurrency"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	// ActiveExchanges lists which of the Exchanges entries the engine
	// should build an ExecutionManager for.
	ActiveExchanges []string `yaml:"active_exchanges" validate:"required,min=1"`
	// SystemConfigPath points at the JSON document describing the
	// instruments and executions to trade (system.SystemConfig).
	SystemConfigPath string `yaml:"system_config_path" validate:"required"`
	// Environment is stamped onto every span, metric and log record's OTel
	// resource, e.g. "paper", "staging", "live", so telemetry from
	// different deployments of the same binary is distinguishable.
	Environment string `yaml:"environment"`
}

// ExchangeConfig contains exchange-specific configuration. Credentials are
// held as Secret so a Config accidentally logged or marshaled never leaks
// them.
type ExchangeConfig struct {
	APIKey                Secret  `yaml:"api_key" validate:"required"`
	SecretKey             Secret  `yaml:"secret_key" validate:"required"`
	Passphrase            Secret  `yaml:"passphrase"` // required by some exchanges
	BaseURL               string  `yaml:"base_url"`
	FeeRate               float64 `yaml:"fee_rate" validate:"required,min=0,max=1"`
	RequestTimeoutMS      int     `yaml:"request_timeout_ms" validate:"min=0,max=60000"`
	RequestsPerSecond     int     `yaml:"requests_per_second" validate:"min=0,max=10000"`
	ReconnectDelaySeconds int     `yaml:"reconnect_delay_seconds" validate:"min=0,max=300"`
}

// RequestTimeout returns the configured per-request timeout, defaulting to
// 5 seconds when unset.
func (c ExchangeConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// ReconnectDelay returns the configured account-stream reconnect backoff,
// defaulting to 2 seconds when unset.
func (c ExchangeConfig) ReconnectDelay() time.Duration {
	if c.ReconnectDelaySeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

// SystemConfig contains ambient process-wide settings (not to be confused
// with system.SystemConfig, the trading-domain document).
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
}

// TimingConfig contains reconnect/backoff timings shared across exchange
// connectivity.
type TimingConfig struct {
	WebsocketReconnectDelay    int `yaml:"websocket_reconnect_delay" validate:"min=1,max=300"`
	WebsocketPingInterval      int `yaml:"websocket_ping_interval" validate:"min=1,max=300"`
	WebsocketPongWait          int `yaml:"websocket_pong_wait" validate:"min=1,max=300"`
	ListenKeyKeepaliveInterval int `yaml:"listen_key_keepalive_interval" validate:"min=1,max=3600"`
	ReconcileIntervalSeconds   int `yaml:"reconcile_interval_seconds" validate:"min=1,max=3600"`
}

// ConcurrencyConfig carries sizing for the audit broadcaster's worker pool.
// SystemBuilder does not read it: it builds the audit pool with 4 workers
// and a capacity of 1024.
type ConcurrencyConfig struct {
	AuditPoolWorkers  int `yaml:"audit_pool_workers" validate:"min=1,max=100"`
	AuditPoolCapacity int `yaml:"audit_pool_capacity" validate:"min=1,max=100000"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion, so exchange credentials can be injected via the environment
// rather than committed to the file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateExchanges(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	if len(c.App.ActiveExchanges) == 0 {
		return ValidationError{Field: "app.active_exchanges", Message: "at least one exchange must be active"}
	}
	for _, ex := range c.App.ActiveExchanges {
		if ex == "mock" {
			continue
		}
		if _, exists := c.Exchanges[ex]; !exists {
			return ValidationError{
				Field:   "app.active_exchanges",
				Value:   ex,
				Message: "exchange configuration not found in exchanges section",
			}
		}
	}
	if c.App.SystemConfigPath == "" {
		return ValidationError{Field: "app.system_config_path", Message: "system config path is required"}
	}
	return nil
}

func (c *Config) validateExchanges() error {
	for name, exchange := range c.Exchanges {
		if exchange.APIKey == "" {
			return ValidationError{Field: fmt.Sprintf("exchanges.%s.api_key", name), Message: "API key is required"}
		}
		if exchange.SecretKey == "" {
			return ValidationError{Field: fmt.Sprintf("exchanges.%s.secret_key", name), Message: "secret key is required"}
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration; exchange
// credentials render as Secret's redacted form.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for local runs and tests.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			ActiveExchanges:  []string{"mock"},
			SystemConfigPath: "system.json",
			Environment:      "development",
		},
		Exchanges: map[string]ExchangeConfig{},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Timing: TimingConfig{
			WebsocketReconnectDelay: 5,
			WebsocketPingInterval:  30,
			WebsocketPongWait:      60,
		},
		Concurrency: ConcurrencyConfig{
			AuditPoolWorkers:  4,
			AuditPoolCapacity: 1024,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
