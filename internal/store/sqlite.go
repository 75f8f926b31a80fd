package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements SampleStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Raw sample sets, one row per backend query
	CREATE TABLE IF NOT EXISTS sample_sets (
		query_key TEXT PRIMARY KEY,
		trade_date TEXT NOT NULL,
		idx TEXT NOT NULL,
		expiry TEXT NOT NULL,
		source TEXT NOT NULL,
		sample_count INTEGER NOT NULL,
		payload TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sample_sets_date ON sample_sets(trade_date);
	CREATE INDEX IF NOT EXISTS idx_sample_sets_index ON sample_sets(idx);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(errors.ErrDatabaseError, err.Error())
	}
	return nil
}

// ============================================================================
// Sample Methods
// ============================================================================

// SaveSamples replaces the cached set for q.
func (s *SQLiteStore) SaveSamples(ctx context.Context, q models.SeriesQuery, samples []models.RawSample) error {
	if samples == nil {
		samples = []models.RawSample{}
	}
	payload, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sample_sets (query_key, trade_date, idx, expiry, source, sample_count, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.Key(), q.DateString(), string(q.Index), q.Expiry, string(q.Source), len(samples), string(payload), now)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to save samples: %v", err))
	}

	return s.SetLastSync(SyncTypeSamples, now)
}

// GetSamples returns the cached set for q.
func (s *SQLiteStore) GetSamples(ctx context.Context, q models.SeriesQuery) (*SampleSet, error) {
	var (
		payload   string
		fetchedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at FROM sample_sets WHERE query_key = ?
	`, q.Key()).Scan(&payload, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewDataError("samples", q.Key(), "not cached", errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to query samples: %v", err))
	}

	var samples []models.RawSample
	if err := json.Unmarshal([]byte(payload), &samples); err != nil {
		return nil, errors.NewDataError("samples", q.Key(), "corrupt payload", err)
	}

	return &SampleSet{Query: q, Samples: samples, FetchedAt: fetchedAt}, nil
}

// ListSets returns cached sets, newest trading day first.
func (s *SQLiteStore) ListSets(ctx context.Context, filter SetFilter) ([]SetInfo, error) {
	query := `SELECT trade_date, idx, expiry, source, sample_count, fetched_at FROM sample_sets`
	var (
		where []string
		args  []interface{}
	)
	if filter.Index != "" {
		where = append(where, "idx = ?")
		args = append(args, string(filter.Index))
	}
	if !filter.From.IsZero() {
		where = append(where, "trade_date >= ?")
		args = append(args, filter.From.Format(dateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, "trade_date <= ?")
		args = append(args, filter.To.Format(dateLayout))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY trade_date DESC, idx ASC, expiry ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sample sets: %w", err)
	}
	defer rows.Close()

	var sets []SetInfo
	for rows.Next() {
		var (
			info                     SetInfo
			date, index, src, expiry string
		)
		if err := rows.Scan(&date, &index, &expiry, &src, &info.SampleCount, &info.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample set: %w", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("bad trade_date %q: %w", date, err)
		}
		info.Query = models.SeriesQuery{
			Date:   d,
			Index:  models.Index(index),
			Expiry: expiry,
			Source: models.Source(src),
		}
		sets = append(sets, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample sets: %w", err)
	}

	return sets, nil
}

// PurgeSamples deletes sets whose trading day is before the given date.
func (s *SQLiteStore) PurgeSamples(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sample_sets WHERE trade_date < ?`, before.Format(dateLayout))
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to purge samples: %v", err))
	}
	n, _ := res.RowsAffected()
	_ = s.SetLastSync(SyncTypePurge, time.Now())
	return n, nil
}

// PurgeAll empties the sample cache.
func (s *SQLiteStore) PurgeAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sample_sets`)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to purge samples: %v", err))
	}
	n, _ := res.RowsAffected()
	_ = s.SetLastSync(SyncTypePurge, time.Now())
	return n, nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}
