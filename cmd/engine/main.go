// Command engine is the thin process entrypoint: it loads the ambient
// process config and the domain SystemConfig, wires a System through
// SystemBuilder, exposes its metrics, and runs it to completion under
// signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"algoengine/internal/bootstrap"
	"algoengine/internal/clock"
	"algoengine/internal/system"
	"algoengine/pkg/telemetry"
)

// version is stamped onto telemetry's resource attributes. Overridden at
// build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the process YAML config")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	if app.Cfg.Telemetry.EnableMetrics {
		tel, err := telemetry.Setup("algoengine", version, app.Cfg.App.Environment)
		if err != nil {
			return fmt.Errorf("telemetry setup: %w", err)
		}
		defer tel.Shutdown(context.Background())

		metricsSrv := telemetry.NewServer(app.Cfg.Telemetry.MetricsPort, app.Logger)
		metricsSrv.Start()
		defer metricsSrv.Stop(context.Background())
	}

	sysFile, err := os.Open(app.Cfg.App.SystemConfigPath)
	if err != nil {
		return fmt.Errorf("open system config: %w", err)
	}
	defer sysFile.Close()

	sysCfg, err := system.LoadSystemConfig(sysFile)
	if err != nil {
		return fmt.Errorf("load system config: %w", err)
	}

	rateLimits := make(map[string]int, len(app.Cfg.Exchanges))
	for id, ec := range app.Cfg.Exchanges {
		rateLimits[id] = ec.RequestsPerSecond
	}

	builder := system.NewSystemBuilder(sysCfg, app.Logger).
		WithClock(clock.LiveClock{}).
		WithRateLimits(rateLimits)
	sys, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build system: %w", err)
	}

	return app.Run(&gracefulSystem{sys: sys})
}

// gracefulSystem adapts system.System to bootstrap.Runner, translating
// context cancellation (SIGINT/SIGTERM) into the engine's own audited
// Shutdown event rather than an abrupt context-cancelled exit, so the last
// thing the audit stream records is a proper terminal tick.
type gracefulSystem struct {
	sys *system.System
}

func (g *gracefulSystem) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- g.sys.Run(context.Background()) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		g.sys.Shutdown()
		return <-done
	}
}
