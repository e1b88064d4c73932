package imerg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Reconciler evicts the superseded EARLY entry when its LATE counterpart is
// committed.
type Reconciler struct {
	catalog    Catalog
	archiveDir string
	logger     Logger
}

func NewReconciler(catalog Catalog, archiveDir string, logger Logger) (*Reconciler, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if archiveDir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Reconciler{catalog: catalog, archiveDir: archiveDir, logger: logger}, nil
}

// ReconcileLate removes the EARLY counterpart of a LATE product from both the
// catalog and the archive folder. The catalog removal and the file removal
// are attempted independently; a missing counterpart is a no-op, so the call
// is safe to repeat.
func (r *Reconciler) ReconcileLate(ctx context.Context, lateName string) error {
	earlyName := EarlyCounterpart(lateName)
	if earlyName == lateName {
		return nil
	}
	removed, err := r.catalog.RemoveByName(ctx, EntryName(earlyName))
	if err != nil {
		return fmt.Errorf("%w: removing superseded %s: %v", ErrCatalogUnavailable, earlyName, err)
	}
	if removed > 0 {
		r.logger.Printf("removed superseded early entry %s", EntryName(earlyName))
	}
	earlyPath := filepath.Join(r.archiveDir, earlyName)
	if err := os.Remove(earlyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting superseded file %s: %w", earlyPath, err)
	}
	return nil
}
