package imerg

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Ingestor commits one staged product into the local archive: process the
// payload, place it under the archive folder, and record its catalog entry.
// The staged file itself stays owned by the caller.
type Ingestor interface {
	Ingest(ctx context.Context, item StagedItem) error
}

// FileIngestor is the default Ingestor. It copies the staged payload into
// the archive folder and inserts the catalog entry with the four
// temporal/tier attributes derived from the product name.
type FileIngestor struct {
	catalog    Catalog
	archiveDir string
}

func NewFileIngestor(catalog Catalog, archiveDir string) (*FileIngestor, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if archiveDir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	return &FileIngestor{catalog: catalog, archiveDir: archiveDir}, nil
}

func (g *FileIngestor) Ingest(ctx context.Context, item StagedItem) error {
	if err := os.MkdirAll(g.archiveDir, 0o755); err != nil {
		return err
	}
	finalPath := filepath.Join(g.archiveDir, item.Name)
	if err := copyFile(item.Path, finalPath); err != nil {
		return fmt.Errorf("placing %s: %w", item.Name, err)
	}
	entry := NewEntry(item.Name, item.Timestamp, item.Tier)
	if err := g.catalog.Insert(ctx, entry); err != nil {
		_ = os.Remove(finalPath)
		return fmt.Errorf("cataloging %s: %w", entry.Name, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return err
	}
	committed = true
	return nil
}
