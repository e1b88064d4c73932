package imerg

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Bootstrap lookbacks applied only when the catalog holds no entries of a
// tier. A query failure is never defaulted; it aborts the phase.
const (
	defaultEarlyLookback = 24 * time.Hour
	defaultLateLookback  = 72 * time.Hour
)

// ResolveWatermark returns the newest catalog Timestamp for tier, truncated
// to minute granularity. An empty catalog yields the tier's bootstrap
// default relative to now.
func ResolveWatermark(ctx context.Context, catalog Catalog, tier Tier, now time.Time) (time.Time, error) {
	ts, ok, err := catalog.LatestTimestamp(ctx, tier)
	if err != nil {
		if errors.Is(err, ErrWatermarkInconsistent) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("%w: resolving %s watermark: %v", ErrCatalogUnavailable, tier, err)
	}
	if !ok {
		switch tier {
		case TierEarly:
			return now.Add(-defaultEarlyLookback).Truncate(time.Minute), nil
		default:
			return now.Add(-defaultLateLookback).Truncate(time.Minute), nil
		}
	}
	if ts.IsZero() {
		return time.Time{}, fmt.Errorf("%w: tier %s", ErrWatermarkInconsistent, tier)
	}
	return ts.Truncate(time.Minute), nil
}
