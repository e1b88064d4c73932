// Command imerg-etl performs one full archive synchronization run and
// exits. It is intended to be driven by cron or a one-off operator
// invocation; imergd is the long-running variant.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SERVIR/IMERG-30Min-ETL/internal/app"
	"github.com/SERVIR/IMERG-30Min-ETL/internal/config"
)

// Seams for tests.
var (
	loadConfig   = config.Load
	buildRuntime = app.Build
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("run failed: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	runtime, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runtime.Orchestrator.Run(ctx)
	logger.Printf("run %s completed %d phases in %s", report.RunID, len(report.Phases), report.Elapsed)
	return err
}
