package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemirror/internal/model"
)

// FileName is the journal database file name inside the journal directory.
const FileName = "sitemirror.db"

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// CrawlDB is the SQLite crawl journal.
// It is safe for concurrent use; writes are serialized by the single
// connection.
//
// All runs of all seeds share one database file.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the
	// crawl that is writing.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the journal in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("journal not found at %s: %w", dbPath, err)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check journal path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite only supports one writer. Workers record concurrently, so
	// they queue on the single connection instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		seed_host TEXT NOT NULL,
		started DATETIME NOT NULL,
		finished DATETIME,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(seed_host);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);

	-- One row per processed URL
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		url TEXT NOT NULL,
		final_url TEXT,
		status_code INTEGER,
		content_type TEXT,
		outcome TEXT NOT NULL,
		persist TEXT,
		path TEXT,
		bytes INTEGER,
		content_hash TEXT,
		attempts INTEGER,
		depth INTEGER,
		error TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_run ON fetches(run_id);
	CREATE INDEX IF NOT EXISTS idx_fetches_url ON fetches(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// StartRun inserts a new run for seed and returns its ID.
func (cdb *CrawlDB) StartRun(ctx context.Context, seed string) (string, error) {
	id := uuid.NewString()
	query := `INSERT INTO runs (id, seed, seed_host, started) VALUES (?, ?, ?, ?)`

	_, err := cdb.db.ExecContext(ctx, query, id, seed, seedHost(seed), formatTimestamp(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final summary of a run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, id string, summary *model.CrawlSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	finished := time.Now()
	if summary != nil && !summary.FinishedAt.IsZero() {
		finished = summary.FinishedAt
	}

	result, err := cdb.db.ExecContext(ctx,
		`UPDATE runs SET finished = ?, summary = ? WHERE id = ?`,
		formatTimestamp(finished), string(summaryJSON), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordFetch inserts one per-URL journal row.
func (cdb *CrawlDB) RecordFetch(ctx context.Context, rec *model.FetchRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query := `
	INSERT INTO fetches (run_id, url, final_url, status_code, content_type, outcome,
		persist, path, bytes, content_hash, attempts, depth, error, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := cdb.db.ExecContext(ctx, query,
		rec.RunID,
		rec.URL,
		rec.FinalURL,
		rec.StatusCode,
		rec.ContentType,
		string(rec.Outcome),
		rec.Persist,
		rec.Path,
		rec.Bytes,
		rec.ContentHash,
		rec.Attempts,
		rec.Depth,
		rec.Error,
		formatTimestamp(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch of %s: %w", rec.URL, err)
	}
	return nil
}

// ListRuns returns runs newest first. An empty host lists every run;
// limit <= 0 means no limit.
func (cdb *CrawlDB) ListRuns(ctx context.Context, host string, limit int) ([]model.RunInfo, error) {
	query := `SELECT id, seed, started, finished, summary FROM runs WHERE 1=1`
	args := make([]any, 0, 2)

	if host != "" {
		query += " AND seed_host = ?"
		args = append(args, host)
	}
	query += " ORDER BY started DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunInfo
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by ID.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*model.RunInfo, error) {
	row := cdb.db.QueryRowContext(ctx,
		`SELECT id, seed, started, finished, summary FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListFetches returns the journal rows of a run in insertion order.
func (cdb *CrawlDB) ListFetches(ctx context.Context, runID string) ([]model.FetchRecord, error) {
	query := `
	SELECT run_id, url, final_url, status_code, content_type, outcome, persist,
		path, bytes, content_hash, attempts, depth, error, timestamp
	FROM fetches
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetches: %w", err)
	}
	defer rows.Close()

	var records []model.FetchRecord
	for rows.Next() {
		var rec model.FetchRecord
		var outcome, timestamp string
		var finalURL, contentType, persist, path, hash, errText sql.NullString
		var status, bytes, attempts, depth sql.NullInt64

		if err := rows.Scan(
			&rec.RunID,
			&rec.URL,
			&finalURL,
			&status,
			&contentType,
			&outcome,
			&persist,
			&path,
			&bytes,
			&hash,
			&attempts,
			&depth,
			&errText,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fetch: %w", err)
		}

		rec.FinalURL = finalURL.String
		rec.StatusCode = int(status.Int64)
		rec.ContentType = contentType.String
		rec.Outcome = model.Outcome(outcome)
		rec.Persist = persist.String
		rec.Path = path.String
		rec.Bytes = int(bytes.Int64)
		rec.ContentHash = hash.String
		rec.Attempts = int(attempts.Int64)
		rec.Depth = int(depth.Int64)
		rec.Error = errText.String
		rec.Timestamp = parseTimestamp(timestamp)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.RunInfo, error) {
	var run model.RunInfo
	var started string
	var finished, summaryJSON sql.NullString

	if err := row.Scan(&run.ID, &run.Seed, &started, &finished, &summaryJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = parseTimestamp(started)
	if finished.Valid && finished.String != "" {
		t := parseTimestamp(finished.String)
		run.FinishedAt = &t
	}
	if summaryJSON.Valid && summaryJSON.String != "" && summaryJSON.String != "null" {
		var summary model.CrawlSummary
		// A malformed summary leaves Summary nil rather than hiding the run.
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err == nil {
			run.Summary = &summary
		}
	}
	return run, nil
}

// seedHost returns the lower-cased host of seed, or seed itself when it
// cannot be normalized.
func seedHost(seed string) string {
	normalized, _, err := model.NormalizeURL(seed, nil)
	if err != nil {
		return seed
	}
	return normalized.Hostname()
}

// storedTimestampFormat is used for every timestamp written by this package.
// It is fixed width so that text ordering in SQL matches time ordering.
const storedTimestampFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestampFormat)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimestampFormat,     // Written by formatTimestamp
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
