package imerg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresCatalogTableName = "imerg_catalog"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresCatalog stores archive entries in a single Postgres table. The
// table and its tier/timestamp index are created lazily on first use.
type PostgresCatalog struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresCatalog(dsn string) (*PostgresCatalog, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresCatalog{
		dsn:       dsn,
		tableName: postgresCatalogTableName,
		openDB:    sql.Open,
	}, nil
}

func (c *PostgresCatalog) LatestTimestamp(ctx context.Context, tier Tier) (time.Time, bool, error) {
	if err := c.ensureReady(); err != nil {
		return time.Time{}, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT ts FROM %s WHERE data_age = $1 AND ts IS NOT NULL ORDER BY ts DESC LIMIT 1",
		postgresQuoteIdentifier(c.tableName),
	)
	var ts time.Time
	err := c.db.QueryRowContext(ctx, query, string(tier)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if ts.IsZero() {
		return time.Time{}, false, fmt.Errorf("%w: zero timestamp for tier %s", ErrWatermarkInconsistent, tier)
	}
	return ts.UTC(), true, nil
}

func (c *PostgresCatalog) Insert(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return ErrInvalidInput
	}
	if err := c.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (name, ts, start_ts, end_ts, data_age)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name)
		DO UPDATE SET ts = EXCLUDED.ts, start_ts = EXCLUDED.start_ts,
			end_ts = EXCLUDED.end_ts, data_age = EXCLUDED.data_age`,
		postgresQuoteIdentifier(c.tableName))
	_, err := c.db.ExecContext(ctx, query,
		entry.Name, entry.Timestamp, entry.StartTime, entry.EndTime, string(entry.Tier))
	return err
}

func (c *PostgresCatalog) RemoveByName(ctx context.Context, name string) (int, error) {
	if strings.TrimSpace(name) == "" {
		return 0, ErrInvalidInput
	}
	if err := c.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE name = $1", postgresQuoteIdentifier(c.tableName))
	result, err := c.db.ExecContext(ctx, query, name)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (c *PostgresCatalog) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := c.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE ts < $1", postgresQuoteIdentifier(c.tableName))
	result, err := c.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (c *PostgresCatalog) CountAll(ctx context.Context) (int, error) {
	if err := c.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", postgresQuoteIdentifier(c.tableName))
	var count int
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Analyze refreshes the planner statistics of the catalog table. It backs the
// orchestrator's maintenance phase.
func (c *PostgresCatalog) Analyze(ctx context.Context) error {
	if err := c.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	_, err := c.db.ExecContext(ctx, fmt.Sprintf("ANALYZE %s", postgresQuoteIdentifier(c.tableName)))
	return err
}

func (c *PostgresCatalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *PostgresCatalog) ensureReady() error {
	if c == nil {
		return ErrInvalidInput
	}
	c.initOnce.Do(func() {
		db, err := c.openDB("postgres", c.dsn)
		if err != nil {
			c.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				ts TIMESTAMPTZ NOT NULL,
				start_ts TIMESTAMPTZ NOT NULL,
				end_ts TIMESTAMPTZ NOT NULL,
				data_age TEXT NOT NULL
			)`, postgresQuoteIdentifier(c.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			c.initErr = err
			return
		}
		indexName := c.tableName + "_data_age_ts_idx"
		indexQuery := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (data_age, ts)",
			postgresQuoteIdentifier(indexName),
			postgresQuoteIdentifier(c.tableName),
		)
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			_ = db.Close()
			c.initErr = err
			return
		}
		c.db = db
	})
	return c.initErr
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
