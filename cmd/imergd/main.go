// Command imergd runs the archive synchronization on a fixed interval and
// serves run status over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SERVIR/IMERG-30Min-ETL/internal/app"
	"github.com/SERVIR/IMERG-30Min-ETL/internal/config"
	"github.com/SERVIR/IMERG-30Min-ETL/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	runtime, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("initialize: %v", err)
	}
	defer runtime.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := httpapi.NewServer()
	server := &http.Server{Addr: cfg.ListenAddr, Handler: status}
	go func() {
		logger.Printf("status server listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("status server failed: %v", err)
		}
	}()

	runLoop(ctx, runtime, status, time.Duration(cfg.RunInterval), logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("status server shutdown: %v", err)
	}
}

// runLoop executes one run immediately, then one per tick until the context
// is cancelled. A failed run is logged and the loop waits for the next tick.
func runLoop(ctx context.Context, runtime *app.Runtime, status *httpapi.Server, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status.RecordStart(time.Now())
		report, err := runtime.Orchestrator.Run(ctx)
		status.RecordResult(report)
		if err != nil {
			logger.Printf("run %s failed, retrying on next interval: %v", report.RunID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
