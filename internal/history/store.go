package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"transmute/internal/catalog"
	"transmute/internal/jobs"
	"transmute/internal/services"
)

// Entry is one finished job.
type Entry struct {
	JobID        string              `json:"job_id"`
	BatchID      string              `json:"batch_id,omitempty"`
	Status       jobs.Status         `json:"status"`
	Domain       catalog.Domain      `json:"domain,omitempty"`
	SourcePath   string              `json:"source_path"`
	SourceFormat catalog.Format      `json:"source_format,omitempty"`
	TargetFormat catalog.Format      `json:"target_format,omitempty"`
	Route        string              `json:"route,omitempty"`
	Hops         int                 `json:"hops"`
	Quality      catalog.QualityTier `json:"quality,omitempty"`
	OutputPath   string              `json:"output_path,omitempty"`
	OutputSize   int64               `json:"output_size,omitempty"`
	Error        string              `json:"error,omitempty"`
	ErrorKind    string              `json:"error_kind,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    time.Time           `json:"started_at,omitzero"`
	EndedAt      time.Time           `json:"ended_at"`
	Duration     time.Duration       `json:"duration"`
	OptionsJSON  string              `json:"options,omitempty"`
}

// EntryFromJob flattens a terminal job snapshot.
func EntryFromJob(job jobs.Job) Entry {
	entry := Entry{
		JobID:        job.ID,
		BatchID:      job.BatchID,
		Status:       job.Status,
		Domain:       job.Route.Domain,
		SourcePath:   job.Input.Path,
		SourceFormat: job.Input.Format,
		TargetFormat: job.Route.Target(),
		Route:        job.Route.String(),
		Hops:         job.Route.HopCount(),
		Quality:      job.Route.Quality,
		Error:        job.Error,
		ErrorKind:    job.ErrorKind,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		EndedAt:      job.EndedAt,
		Duration:     job.Elapsed(job.EndedAt),
	}
	if job.Output != nil {
		entry.OutputPath = job.Output.Path
		entry.OutputSize = job.Output.Size
	}
	if len(job.Route.Formats) > 0 {
		if data, err := json.Marshal(job.Options); err == nil {
			entry.OptionsJSON = string(data)
		}
	}
	return entry
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status  jobs.Status
	BatchID string
	Since   time.Time
	Limit   int
}

// Store persists entries in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "history", "open", "database path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const entryColumns = "id, batch_id, status, domain, source_path, source_format, target_format, route, hops, quality, output_path, output_size, error_message, error_kind, created_at, started_at, ended_at, duration_ms, options_json"

// Record inserts entry, replacing an earlier record of the same job.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return services.Wrap(services.ErrValidation, "history", "record", "job id required", nil)
	}
	var quality any
	if entry.Quality.Valid() {
		quality = entry.Quality.String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO job_history (`+entryColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		nullableString(entry.BatchID),
		string(entry.Status),
		nullableString(string(entry.Domain)),
		entry.SourcePath,
		nullableString(string(entry.SourceFormat)),
		nullableString(string(entry.TargetFormat)),
		nullableString(entry.Route),
		entry.Hops,
		quality,
		nullableString(entry.OutputPath),
		entry.OutputSize,
		nullableString(entry.Error),
		nullableString(entry.ErrorKind),
		formatTime(entry.CreatedAt),
		nullableTime(entry.StartedAt),
		formatTime(entry.EndedAt),
		entry.Duration.Milliseconds(),
		nullableString(entry.OptionsJSON),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", entry.JobID, err)
	}
	return nil
}

// Get returns the entry for jobID.
func (s *Store) Get(ctx context.Context, jobID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM job_history WHERE id = ?", jobID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, "history", "get", "job "+jobID, nil)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return entry, nil
}

// List returns matching entries, most recently finished first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.BatchID != "" {
		clauses = append(clauses, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	query := "SELECT " + entryColumns + " FROM job_history"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY ended_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM job_history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[jobs.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[jobs.Status(status)] = count
	}
	return stats, rows.Err()
}

// Prune deletes entries that finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM job_history WHERE ended_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		id           string
		batchID      sql.NullString
		status       string
		domain       sql.NullString
		sourcePath   string
		sourceFormat sql.NullString
		targetFormat sql.NullString
		route        sql.NullString
		hops         int
		quality      sql.NullString
		outputPath   sql.NullString
		outputSize   int64
		errorMessage sql.NullString
		errorKind    sql.NullString
		createdRaw   string
		startedRaw   sql.NullString
		endedRaw     string
		durationMS   int64
		options      sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&batchID,
		&status,
		&domain,
		&sourcePath,
		&sourceFormat,
		&targetFormat,
		&route,
		&hops,
		&quality,
		&outputPath,
		&outputSize,
		&errorMessage,
		&errorKind,
		&createdRaw,
		&startedRaw,
		&endedRaw,
		&durationMS,
		&options,
	); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		JobID:        id,
		BatchID:      batchID.String,
		Status:       jobs.Status(status),
		Domain:       catalog.Domain(domain.String),
		SourcePath:   sourcePath,
		SourceFormat: catalog.Format(sourceFormat.String),
		TargetFormat: catalog.Format(targetFormat.String),
		Route:        route.String,
		Hops:         hops,
		OutputPath:   outputPath.String,
		OutputSize:   outputSize,
		Error:        errorMessage.String,
		ErrorKind:    errorKind.String,
		CreatedAt:    parseTime(createdRaw),
		EndedAt:      parseTime(endedRaw),
		Duration:     time.Duration(durationMS) * time.Millisecond,
		OptionsJSON:  options.String,
	}
	if startedRaw.Valid {
		entry.StartedAt = parseTime(startedRaw.String)
	}
	if quality.Valid {
		if tier, err := catalog.ParseQualityTier(quality.String); err == nil {
			entry.Quality = tier
		}
	}
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
