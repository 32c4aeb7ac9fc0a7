package bootstrap

import "algoengine/internal/logging"

// InitLogger builds the process-wide structured logger from cfg.System's
// log level.
func InitLogger(cfg *Config) logging.Logger {
	return logging.New(cfg.System.LogLevel)
}
