// Package app wires configuration into a ready-to-run orchestrator. Both
// the one-shot CLI and the daemon share this assembly.
package app

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/SERVIR/IMERG-30Min-ETL/internal/config"
	"github.com/SERVIR/IMERG-30Min-ETL/internal/imerg"
	"github.com/SERVIR/IMERG-30Min-ETL/internal/transport"
)

// Runtime bundles the assembled orchestrator with the resources that need
// closing when the process exits.
type Runtime struct {
	Orchestrator *imerg.Orchestrator
	closers      []io.Closer
}

func (r *Runtime) Close() error {
	var last error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			last = err
		}
	}
	return last
}

// Build assembles the orchestrator from a validated config.
func Build(cfg *config.Config, logger imerg.Logger) (*Runtime, error) {
	dsn := cfg.TransportDSN
	if cfg.FTPUsername != "" {
		withCreds, err := credentialedDSN(dsn, cfg.FTPUsername, cfg.FTPPassword)
		if err != nil {
			return nil, fmt.Errorf("apply transport credentials: %w", err)
		}
		dsn = withCreds
	}
	archive, err := transport.BuildArchiveFromDSN(dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	catalog, err := imerg.NewPostgresCatalog(cfg.CatalogDSN)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	lateSync, err := imerg.NewSyncEngine(imerg.SyncEngineOptions{
		Archive:    archive,
		BaseFolder: cfg.LateFolder,
		StagingDir: cfg.LateStagingDir,
		Pattern:    cfg.FilenamePattern,
		Layout:     cfg.TimestampLayout,
		Logger:     logger,
	})
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("build late sync engine: %w", err)
	}
	earlySync, err := imerg.NewSyncEngine(imerg.SyncEngineOptions{
		Archive:    archive,
		BaseFolder: cfg.EarlyFolder,
		StagingDir: cfg.EarlyStagingDir,
		Pattern:    cfg.FilenamePattern,
		Layout:     cfg.TimestampLayout,
		Logger:     logger,
	})
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("build early sync engine: %w", err)
	}

	retention, err := imerg.NewRetentionEngine(imerg.RetentionOptions{
		Catalog:    catalog,
		ArchiveDir: cfg.ArchiveDir,
		Pattern:    cfg.FilenamePattern,
		Layout:     cfg.TimestampLayout,
		Logger:     logger,
	})
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("build retention engine: %w", err)
	}

	maintainers := []imerg.Maintainer{imerg.NewCatalogMaintainer(catalog)}
	if cfg.ServiceRefresh != nil {
		refresher, err := imerg.NewServiceRefresher(imerg.ServiceRefresherOptions{
			AdminBase:   cfg.ServiceRefresh.AdminBase,
			Username:    cfg.ServiceRefresh.Username,
			Password:    cfg.ServiceRefresh.Password,
			Folder:      cfg.ServiceRefresh.Folder,
			Service:     cfg.ServiceRefresh.Service,
			ServiceType: cfg.ServiceRefresh.ServiceType,
			Logger:      logger,
		})
		if err != nil {
			catalog.Close()
			return nil, fmt.Errorf("build service refresher: %w", err)
		}
		maintainers = append(maintainers, refresher)
	}

	ingestor, err := imerg.NewFileIngestor(catalog, cfg.ArchiveDir)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("build ingestor: %w", err)
	}
	reconciler, err := imerg.NewReconciler(catalog, cfg.ArchiveDir, logger)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("build reconciler: %w", err)
	}

	orchestrator, err := imerg.NewOrchestrator(imerg.OrchestratorOptions{
		Catalog:       catalog,
		LateSync:      lateSync,
		EarlySync:     earlySync,
		Ingestor:      ingestor,
		Reconciler:    reconciler,
		Retention:     retention,
		RetentionDays: cfg.RetentionDays,
		Maintainers:   maintainers,
		Logger:        logger,
	})
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return &Runtime{Orchestrator: orchestrator, closers: []io.Closer{catalog}}, nil
}

// credentialedDSN folds environment credentials into the transport DSN
// userinfo so the config file never carries secrets.
func credentialedDSN(dsn, username, password string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(parsed.Scheme, "ftp") {
		// Relayed transports authenticate at the FTP hop behind the relay;
		// the relay endpoint itself is unauthenticated.
		return dsn, nil
	}
	parsed.User = url.UserPassword(username, password)
	return parsed.String(), nil
}
