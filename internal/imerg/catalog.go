package imerg

import (
	"context"
	"time"
)

// Entry is one persisted raster record. Name is the product name without its
// file extension; StartTime and EndTime bracket Timestamp by WindowHalf.
type Entry struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Tier      Tier      `json:"tier"`
}

// NewEntry derives the catalog record for a product name and its nominal
// timestamp.
func NewEntry(productName string, ts time.Time, tier Tier) Entry {
	return Entry{
		Name:      EntryName(productName),
		Timestamp: ts,
		StartTime: ts.Add(-WindowHalf),
		EndTime:   ts.Add(WindowHalf),
		Tier:      tier,
	}
}

// Catalog is the raster mosaic catalog collaborator. Implementations are
// expected to tolerate repeated Insert and Remove calls for the same name so
// that an aborted run can safely be re-run.
type Catalog interface {
	// LatestTimestamp returns the newest Timestamp among entries of the
	// given tier, or ok=false when the catalog holds none.
	LatestTimestamp(ctx context.Context, tier Tier) (ts time.Time, ok bool, err error)

	// Insert records an entry, replacing any previous entry of the same name.
	Insert(ctx context.Context, entry Entry) error

	// RemoveByName removes the entry with the exact name, reporting how many
	// entries were removed (zero when the name is absent).
	RemoveByName(ctx context.Context, name string) (int, error)

	// RemoveOlderThan removes every entry whose Timestamp is strictly before
	// cutoff, reporting how many entries were removed.
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// CountAll returns the total number of entries.
	CountAll(ctx context.Context) (int, error)
}
