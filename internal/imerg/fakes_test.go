package imerg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// fakeCatalog is an in-memory Catalog with per-method error injection.
type fakeCatalog struct {
	mu        sync.Mutex
	entries   map[string]Entry
	latestErr error
	insertErr error
	removeErr error
	sweepErr  error
	countErr  error

	removedNames []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{entries: map[string]Entry{}}
}

func (c *fakeCatalog) LatestTimestamp(_ context.Context, tier Tier) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latestErr != nil {
		return time.Time{}, false, c.latestErr
	}
	var latest time.Time
	found := false
	for _, entry := range c.entries {
		if entry.Tier != tier {
			continue
		}
		if !found || entry.Timestamp.After(latest) {
			latest = entry.Timestamp
			found = true
		}
	}
	return latest, found, nil
}

func (c *fakeCatalog) Insert(_ context.Context, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return c.insertErr
	}
	c.entries[entry.Name] = entry
	return nil
}

func (c *fakeCatalog) RemoveByName(_ context.Context, name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removeErr != nil {
		return 0, c.removeErr
	}
	if _, ok := c.entries[name]; !ok {
		return 0, nil
	}
	delete(c.entries, name)
	c.removedNames = append(c.removedNames, name)
	return 1, nil
}

func (c *fakeCatalog) RemoveOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sweepErr != nil {
		return 0, c.sweepErr
	}
	removed := 0
	for name, entry := range c.entries {
		if entry.Timestamp.Before(cutoff) {
			delete(c.entries, name)
			removed++
		}
	}
	return removed, nil
}

func (c *fakeCatalog) CountAll(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countErr != nil {
		return 0, c.countErr
	}
	return len(c.entries), nil
}

func (c *fakeCatalog) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *fakeCatalog) has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[name]
	return ok
}

// fakeArchive is an in-memory transport.Archive keyed by folder path.
type fakeArchive struct {
	mu       sync.Mutex
	folders  map[string][]string
	payloads map[string][]byte
	listErr  map[string]error
	fetchErr map[string]error

	listedFolders []string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		folders:  map[string][]string{},
		payloads: map[string][]byte{},
		listErr:  map[string]error{},
		fetchErr: map[string]error{},
	}
}

func (a *fakeArchive) add(folder, name string, payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.folders[folder] = append(a.folders[folder], name)
	a.payloads[folder+"/"+name] = payload
}

func (a *fakeArchive) ListEntries(_ context.Context, folder string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listedFolders = append(a.listedFolders, folder)
	if err := a.listErr[folder]; err != nil {
		return nil, err
	}
	return append([]string(nil), a.folders[folder]...), nil
}

func (a *fakeArchive) Fetch(_ context.Context, folder, name string, dest io.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.fetchErr[name]; err != nil {
		return err
	}
	payload, ok := a.payloads[folder+"/"+name]
	if !ok {
		return fmt.Errorf("no such remote file %s/%s", folder, name)
	}
	_, err := io.Copy(dest, bytes.NewReader(payload))
	return err
}

// fakeIngestor records committed items without touching the filesystem.
type fakeIngestor struct {
	mu        sync.Mutex
	committed []StagedItem
	failFor   map[string]error
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{failFor: map[string]error{}}
}

func (i *fakeIngestor) Ingest(_ context.Context, item StagedItem) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.failFor[item.Name]; err != nil {
		return err
	}
	i.committed = append(i.committed, item)
	return nil
}

func (i *fakeIngestor) committedNames() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.committed))
	for _, item := range i.committed {
		out = append(out, item.Name)
	}
	return out
}

// productName builds a realistic 30-minute product filename with the given
// tier marker and embedded start stamp, e.g. "20180801-S090000".
func productName(tier Tier, stamp string) string {
	marker := "L"
	if tier == TierEarly {
		marker = "E"
	}
	end, _ := time.Parse(StartDateLayout, stamp)
	endStamp := end.Add(30*time.Minute - time.Second).Format("150405")
	return fmt.Sprintf("3B-HHR-%s.MS.MRG.3IMERG.%s-E%s.0510.V06B.30min.tif", marker, stamp, endStamp)
}

func mustStamp(t time.Time) string {
	return t.Format(StartDateLayout)
}
