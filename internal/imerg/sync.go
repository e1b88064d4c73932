package imerg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/SERVIR/IMERG-30Min-ETL/internal/transport"
)

// StagedItem is a downloaded-but-not-yet-committed remote product. The sync
// engine owns the staging file until the orchestrator commits or discards it.
type StagedItem struct {
	Name      string
	Path      string
	Timestamp time.Time
	Tier      Tier
}

// SyncResult reports one tier pass. Failures are contained per-item
// outcomes; a non-nil error from Sync means the whole pass aborted.
type SyncResult struct {
	Discovered int
	Downloaded []StagedItem
	Skipped    int
	Failures   []FetchFailure
}

// SyncEngine discovers and stages all remote products of one tier newer than
// a watermark.
type SyncEngine struct {
	archive    transport.Archive
	baseFolder string
	stagingDir string
	pattern    *regexp.Regexp
	layout     string
	logger     Logger
}

type SyncEngineOptions struct {
	Archive    transport.Archive
	BaseFolder string
	StagingDir string
	// Pattern and Layout locate and parse the embedded start timestamp;
	// they default to StartDatePattern and StartDateLayout.
	Pattern string
	Layout  string
	Logger  Logger
}

func NewSyncEngine(opts SyncEngineOptions) (*SyncEngine, error) {
	if opts.Archive == nil {
		return nil, fmt.Errorf("archive transport is required")
	}
	if opts.BaseFolder == "" {
		return nil, fmt.Errorf("remote base folder is required")
	}
	if opts.StagingDir == "" {
		return nil, fmt.Errorf("staging directory is required")
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
	return &SyncEngine{
		archive:    opts.Archive,
		baseFolder: opts.BaseFolder,
		stagingDir: opts.StagingDir,
		pattern:    pattern,
		layout:     layout,
		logger:     logger,
	}, nil
}

// Sync walks every remote partition from lower's month through now's month
// and stages each product of the given tier whose timestamp is strictly
// after lower (and, when extraLower is non-zero, strictly after extraLower).
// A failed fetch is recorded and skipped; a failed listing aborts the pass.
//
// The final (current) month is always listed in full; the timestamp filter
// excludes files that are not yet relevant.
func (e *SyncEngine) Sync(ctx context.Context, tier Tier, lower, now time.Time, extraLower time.Time) (SyncResult, error) {
	result := SyncResult{}
	if err := os.MkdirAll(e.stagingDir, 0o755); err != nil {
		return result, fmt.Errorf("creating staging directory %s: %w", e.stagingDir, err)
	}
	for _, ym := range PlanMonths(YearMonthOf(lower), YearMonthOf(now)) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		folder := e.baseFolder + "/" + ym.String()
		names, err := e.archive.ListEntries(ctx, folder)
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
		downloaded := 0
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if !IsProduct(name) {
				continue
			}
			if t, ok := TierOf(name); !ok || t != tier {
				continue
			}
			result.Discovered++
			ts, ok := ExtractTimestamp(name, e.pattern, e.layout)
			if !ok {
				e.logger.Printf("skipping %s: no parsable start date", name)
				result.Skipped++
				continue
			}
			if !ts.After(lower) {
				result.Skipped++
				continue
			}
			if !extraLower.IsZero() && !ts.After(extraLower) {
				result.Skipped++
				continue
			}
			item, err := e.stage(ctx, folder, name, ts, tier)
			if err != nil {
				e.logger.Printf("fetch failed for %s: %v", name, err)
				result.Failures = append(result.Failures, FetchFailure{Name: name, Cause: err})
				continue
			}
			result.Downloaded = append(result.Downloaded, item)
			downloaded++
		}
		e.logger.Printf("%d %s files downloaded from folder %s", downloaded, tier, folder)
	}
	return result, nil
}

func (e *SyncEngine) stage(ctx context.Context, folder, name string, ts time.Time, tier Tier) (StagedItem, error) {
	stagingPath := filepath.Join(e.stagingDir, name)
	f, err := os.Create(stagingPath)
	if err != nil {
		return StagedItem{}, err
	}
	if err := e.archive.Fetch(ctx, folder, name, f); err != nil {
		_ = f.Close()
		_ = os.Remove(stagingPath)
		return StagedItem{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(stagingPath)
		return StagedItem{}, err
	}
	return StagedItem{
		Name:      name,
		Path:      stagingPath,
		Timestamp: ts,
		Tier:      tier,
	}, nil
}
