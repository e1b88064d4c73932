package imerg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

var postgresIntegrationCounter uint64

func postgresIntegrationDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("IMERG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set IMERG_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	return dsn
}

func postgresIntegrationTableName(prefix string) string {
	n := atomic.AddUint64(&postgresIntegrationCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, os.Getpid(), n)
}

func postgresIntegrationDropTable(t *testing.T, dsn, table string) {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open for cleanup: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", postgresQuoteIdentifier(table))); err != nil {
		t.Fatalf("drop table %s: %v", table, err)
	}
}

func TestPostgresIntegrationCatalogRoundTrip(t *testing.T) {
	dsn := postgresIntegrationDSN(t)

	catalog, err := NewPostgresCatalog(dsn)
	if err != nil {
		t.Fatalf("new postgres catalog: %v", err)
	}
	catalog.tableName = postgresIntegrationTableName("imerg_catalog_it")
	t.Cleanup(func() {
		_ = catalog.Close()
		postgresIntegrationDropTable(t, dsn, catalog.tableName)
	})

	ctx := context.Background()
	if _, ok, err := catalog.LatestTimestamp(ctx, TierLate); err != nil || ok {
		t.Fatalf("expected empty catalog, ok=%v err=%v", ok, err)
	}

	lateTS := time.Date(2018, time.August, 1, 9, 0, 0, 0, time.UTC)
	earlyTS := time.Date(2018, time.August, 1, 10, 30, 0, 0, time.UTC)
	lateName := productName(TierLate, mustStamp(lateTS))
	earlyName := productName(TierEarly, mustStamp(earlyTS))
	if err := catalog.Insert(ctx, NewEntry(lateName, lateTS, TierLate)); err != nil {
		t.Fatalf("insert late: %v", err)
	}
	if err := catalog.Insert(ctx, NewEntry(earlyName, earlyTS, TierEarly)); err != nil {
		t.Fatalf("insert early: %v", err)
	}

	ts, ok, err := catalog.LatestTimestamp(ctx, TierLate)
	if err != nil || !ok {
		t.Fatalf("latest late: ok=%v err=%v", ok, err)
	}
	if !ts.Equal(lateTS) {
		t.Fatalf("expected late watermark %s, got %s", lateTS, ts)
	}
	ts, ok, err = catalog.LatestTimestamp(ctx, TierEarly)
	if err != nil || !ok {
		t.Fatalf("latest early: ok=%v err=%v", ok, err)
	}
	if !ts.Equal(earlyTS) {
		t.Fatalf("expected early watermark %s, got %s", earlyTS, ts)
	}

	// Re-insert with a different tier marker value; the row is replaced.
	if err := catalog.Insert(ctx, NewEntry(lateName, lateTS, TierLate)); err != nil {
		t.Fatalf("re-insert late: %v", err)
	}
	count, err := catalog.CountAll(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries after upsert, got %d", count)
	}

	removed, err := catalog.RemoveByName(ctx, EntryName(earlyName))
	if err != nil {
		t.Fatalf("remove by name: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if removed, err = catalog.RemoveByName(ctx, EntryName(earlyName)); err != nil || removed != 0 {
		t.Fatalf("expected repeat removal to be a no-op, removed=%d err=%v", removed, err)
	}
}

func TestPostgresIntegrationRetentionSweep(t *testing.T) {
	dsn := postgresIntegrationDSN(t)

	catalog, err := NewPostgresCatalog(dsn)
	if err != nil {
		t.Fatalf("new postgres catalog: %v", err)
	}
	catalog.tableName = postgresIntegrationTableName("imerg_retention_it")
	t.Cleanup(func() {
		_ = catalog.Close()
		postgresIntegrationDropTable(t, dsn, catalog.tableName)
	})

	ctx := context.Background()
	cutoff := time.Date(2018, time.May, 3, 0, 0, 0, 0, time.UTC)
	oldTS := cutoff.AddDate(0, 0, -1)
	keptTS := cutoff.Add(8 * time.Hour)
	if err := catalog.Insert(ctx, NewEntry(productName(TierLate, mustStamp(oldTS)), oldTS, TierLate)); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if err := catalog.Insert(ctx, NewEntry(productName(TierLate, mustStamp(keptTS)), keptTS, TierLate)); err != nil {
		t.Fatalf("insert kept: %v", err)
	}

	removed, err := catalog.RemoveOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("remove older than: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	count, err := catalog.CountAll(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", count)
	}

	if err := catalog.Analyze(ctx); err != nil {
		t.Fatalf("analyze: %v", err)
	}
}
