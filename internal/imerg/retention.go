package imerg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// RetentionResult reports one eviction sweep.
type RetentionResult struct {
	CatalogRemoved int
	FilesRemoved   int
}

// RetentionEngine ages out catalog entries and archive files past the keep
// horizon. The catalog sweep and the file sweep run independently: either
// may fail without blocking the other.
type RetentionEngine struct {
	catalog    Catalog
	archiveDir string
	pattern    *regexp.Regexp
	layout     string
	logger     Logger
}

type RetentionOptions struct {
	Catalog    Catalog
	ArchiveDir string
	Pattern    string
	Layout     string
	Logger     Logger
}

func NewRetentionEngine(opts RetentionOptions) (*RetentionEngine, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if opts.ArchiveDir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	patternText := opts.Pattern
	if patternText == "" {
		patternText = StartDatePattern
	}
	pattern, err := regexp.Compile(patternText)
	if err != nil {
		return nil, fmt.Errorf("compiling start date pattern: %w", err)
	}
	layout := opts.Layout
	if layout == "" {
		layout = StartDateLayout
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &RetentionEngine{
		catalog:    opts.Catalog,
		archiveDir: opts.ArchiveDir,
		pattern:    pattern,
		layout:     layout,
		logger:     logger,
	}, nil
}

// KeepDate truncates now to midnight and steps back retentionDays whole
// days. Entries dated exactly at the keep date are retained; eviction is
// date-granular, not time-granular.
func KeepDate(now time.Time, retentionDays int) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -retentionDays)
}

// Evict removes every catalog entry with Timestamp before the keep date,
// then scans the archive folder and deletes every product file whose
// filename-derived date is before the keep date. Partial failures are
// collected and returned after both sweeps have run.
func (r *RetentionEngine) Evict(ctx context.Context, retentionDays int, now time.Time) (RetentionResult, error) {
	result := RetentionResult{}
	keepDate := KeepDate(now, retentionDays)
	var sweepErrs []error

	r.logger.Printf("deleting out of date entries where timestamp < %s", keepDate.Format("2006-01-02"))
	removed, err := r.catalog.RemoveOlderThan(ctx, keepDate)
	if err != nil {
		sweepErrs = append(sweepErrs, fmt.Errorf("%w: retention sweep: %v", ErrCatalogUnavailable, err))
	} else {
		result.CatalogRemoved = removed
	}

	filesRemoved, err := r.evictFiles(keepDate)
	result.FilesRemoved = filesRemoved
	if err != nil {
		sweepErrs = append(sweepErrs, err)
	}
	r.logger.Printf("deleted %d physical raster files", result.FilesRemoved)
	return result, errors.Join(sweepErrs...)
}

func (r *RetentionEngine) evictFiles(keepDate time.Time) (int, error) {
	entries, err := os.ReadDir(r.archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scanning archive folder: %w", err)
	}
	removed := 0
	var removeErrs []error
	for _, entry := range entries {
		if entry.IsDir() || !IsProduct(entry.Name()) {
			continue
		}
		ts, ok := ExtractTimestamp(entry.Name(), r.pattern, r.layout)
		if !ok {
			continue
		}
		fileDate := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, keepDate.Location())
		if !fileDate.Before(keepDate) {
			continue
		}
		path := filepath.Join(r.archiveDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			removeErrs = append(removeErrs, fmt.Errorf("deleting %s: %w", path, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(removeErrs...)
}
