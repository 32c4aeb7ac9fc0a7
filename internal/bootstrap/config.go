// Package bootstrap wires process configuration, logging and lifecycle
// signal handling together ahead of building a system.System, keeping
// "getting a process running" separate from "running the trading logic".
package bootstrap

import (
	"fmt"

	"algoengine/internal/config"
)

// Config is an alias for the project's main configuration struct.
type Config = config.Config

// LoadConfig delegates to the project's config loader, running any
// pre-flight checks beyond schema validation.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}
	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation: every
// exchange the process is configured to activate must actually have
// credentials on file, the "mock" pseudo-exchange excepted.
func checkPreFlight(cfg *Config) error {
	for _, ex := range cfg.App.ActiveExchanges {
		if ex == "mock" {
			continue
		}
		if _, ok := cfg.Exchanges[ex]; !ok {
			return fmt.Errorf("active exchange %q has no entry under exchanges", ex)
		}
	}
	return nil
}
