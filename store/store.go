// Package store implements durable storage and telemetry: a single
// sqlite file per installation holding schema/cluster/profile artifacts,
// job status and event history, and materialization metrics, with
// idempotent migrations applied on every open. All writes serialize
// through a single mutex-guarded handle, giving one writer per logical
// table without needing a separate writer goroutine.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/gurre/csvfusion/model"
)

// progressRetention caps job_progress_events at this many rows per
// schema_id, oldest evicted first.
const progressRetention = 500

// migrations is applied in order; each statement must be safe to run
// against a database that has already applied it (CREATE TABLE IF NOT
// EXISTS / CREATE INDEX IF NOT EXISTS), since Open runs every migration
// on every open rather than tracking a high-water mark alone.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS schemas (namespace TEXT NOT NULL, id TEXT NOT NULL, version INTEGER NOT NULL, payload TEXT NOT NULL, PRIMARY KEY (namespace, id, version))`,
	`CREATE TABLE IF NOT EXISTS blocks (file_path TEXT NOT NULL, block_index INTEGER NOT NULL, schema_id TEXT NOT NULL, payload TEXT NOT NULL, PRIMARY KEY (file_path, block_index))`,
	`CREATE TABLE IF NOT EXISTS stats (schema_id TEXT NOT NULL, column_name TEXT NOT NULL, payload TEXT NOT NULL, PRIMARY KEY (schema_id, column_name))`,
	`CREATE TABLE IF NOT EXISTS synonyms (term TEXT NOT NULL, variant TEXT NOT NULL, PRIMARY KEY (term, variant))`,
	`CREATE TABLE IF NOT EXISTS column_profiles (file_path TEXT NOT NULL, column_index INTEGER NOT NULL, payload TEXT NOT NULL, PRIMARY KEY (file_path, column_index))`,
	`CREATE TABLE IF NOT EXISTS header_clusters (artifact_version INTEGER PRIMARY KEY, payload TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS artifact_metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS job_status (job_id TEXT PRIMARY KEY, state TEXT NOT NULL, detail TEXT, last_error TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS job_events (job_id TEXT NOT NULL, state TEXT NOT NULL, detail TEXT, at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS job_metrics (job_id TEXT NOT NULL, schema_id TEXT NOT NULL, payload TEXT NOT NULL, PRIMARY KEY (job_id, schema_id))`,
	`CREATE TABLE IF NOT EXISTS job_progress_events (id INTEGER PRIMARY KEY AUTOINCREMENT, job_id TEXT NOT NULL, schema_id TEXT NOT NULL, file_path TEXT NOT NULL, payload TEXT NOT NULL, emitted_at TEXT NOT NULL)`,
	`CREATE INDEX IF NOT EXISTS idx_job_progress_schema ON job_progress_events (schema_id, id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (id INTEGER PRIMARY KEY AUTOINCREMENT, job_id TEXT NOT NULL, action TEXT NOT NULL, detail TEXT, at TEXT NOT NULL)`,
}

// Store is the durable sqlite-backed artifact and telemetry store.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// applies every migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	version := len(migrations)
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		version, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration version: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutSchema upserts a canonical schema version.
func (s *Store) PutSchema(ctx context.Context, cs model.CanonicalSchema) error {
	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schemas (namespace, id, version, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, id, version) DO UPDATE SET payload = excluded.payload`,
		cs.Namespace, cs.ID, cs.Version, string(payload))
	if err != nil {
		return fmt.Errorf("upsert schema: %w", err)
	}
	return nil
}

// GetSchema returns the stored canonical schema, if present.
func (s *Store) GetSchema(ctx context.Context, namespace, id string, version int) (model.CanonicalSchema, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM schemas WHERE namespace = ? AND id = ? AND version = ?`,
		namespace, id, version,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.CanonicalSchema{}, false, nil
	}
	if err != nil {
		return model.CanonicalSchema{}, false, fmt.Errorf("query schema: %w", err)
	}

	var cs model.CanonicalSchema
	if err := json.Unmarshal([]byte(payload), &cs); err != nil {
		return model.CanonicalSchema{}, false, fmt.Errorf("decode schema: %w", err)
	}
	return cs, true, nil
}

// PutHeaderClusters persists a HeaderClusterDocument keyed by its
// artifact version, so reconcileVersions (package cluster) can compare
// against the prior document on the next run.
func (s *Store) PutHeaderClusters(ctx context.Context, doc model.HeaderClusterDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode header clusters: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO header_clusters (artifact_version, payload) VALUES (?, ?)`,
		doc.ArtifactVersion, string(payload))
	if err != nil {
		return fmt.Errorf("insert header clusters: %w", err)
	}
	return nil
}

// LatestHeaderClusters returns the highest artifact_version document, if
// any, for use as the "previous" input to cluster.Build.
func (s *Store) LatestHeaderClusters(ctx context.Context) (model.HeaderClusterDocument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM header_clusters ORDER BY artifact_version DESC LIMIT 1`,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.HeaderClusterDocument{}, false, nil
	}
	if err != nil {
		return model.HeaderClusterDocument{}, false, fmt.Errorf("query header clusters: %w", err)
	}

	var doc model.HeaderClusterDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return model.HeaderClusterDocument{}, false, fmt.Errorf("decode header clusters: %w", err)
	}
	return doc, true, nil
}

// PutJobStatus upserts the current status row for a job.
func (s *Store) PutJobStatus(ctx context.Context, st model.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_status (job_id, state, detail, last_error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id) DO UPDATE SET state = excluded.state, detail = excluded.detail,
		   last_error = excluded.last_error, updated_at = excluded.updated_at`,
		st.JobID, string(st.State), st.Detail, st.LastError,
		st.CreatedAt.UTC().Format(time.RFC3339Nano), st.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert job status: %w", err)
	}
	return nil
}

// GetJobStatus returns the current status row for jobID, if one exists.
// CLI verbs call this to resume a job's state machine across separate
// process invocations of analyze/review/normalize/materialize.
func (s *Store) GetJobStatus(ctx context.Context, jobID string) (model.JobStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.JobStatus
	var state, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, state, detail, last_error, created_at, updated_at FROM job_status WHERE job_id = ?`,
		jobID,
	).Scan(&st.JobID, &state, &st.Detail, &st.LastError, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return model.JobStatus{}, false, nil
	}
	if err != nil {
		return model.JobStatus{}, false, fmt.Errorf("query job status: %w", err)
	}
	st.State = model.JobState(state)
	st.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return st, true, nil
}

// AppendJobEvent appends to the job's event log.
func (s *Store) AppendJobEvent(ctx context.Context, ev model.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_events (job_id, state, detail, at) VALUES (?, ?, ?, ?)`,
		ev.JobID, string(ev.State), ev.Detail, ev.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append job event: %w", err)
	}
	return nil
}

// AppendProgress appends a progress sample and evicts the oldest rows
// for that schema_id beyond progressRetention.
func (s *Store) AppendProgress(ctx context.Context, jobID string, fp model.FileProgress) error {
	payload, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_progress_events (job_id, schema_id, file_path, payload, emitted_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, fp.SchemaID, fp.FilePath, string(payload), fp.EmittedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert progress event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM job_progress_events WHERE schema_id = ? AND id NOT IN (
		   SELECT id FROM job_progress_events WHERE schema_id = ? ORDER BY id DESC LIMIT ?
		 )`,
		fp.SchemaID, fp.SchemaID, progressRetention)
	if err != nil {
		return fmt.Errorf("evict old progress events: %w", err)
	}
	return nil
}

// ProgressHistory returns up to limit most-recent progress samples for
// schemaID, oldest first.
func (s *Store) ProgressHistory(ctx context.Context, schemaID string, limit int) ([]model.FileProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM job_progress_events WHERE schema_id = ? ORDER BY id DESC LIMIT ?`,
		schemaID, limit)
	if err != nil {
		return nil, fmt.Errorf("query progress history: %w", err)
	}
	defer rows.Close()

	var out []model.FileProgress
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan progress event: %w", err)
		}
		var fp model.FileProgress
		if err := json.Unmarshal([]byte(payload), &fp); err != nil {
			return nil, fmt.Errorf("decode progress event: %w", err)
		}
		out = append(out, fp)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// PutMetrics upserts the aggregate counters for a (job, schema) pair.
func (s *Store) PutMetrics(ctx context.Context, m model.JobMetrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_metrics (job_id, schema_id, payload) VALUES (?, ?, ?)
		 ON CONFLICT (job_id, schema_id) DO UPDATE SET payload = excluded.payload`,
		m.JobID, m.SchemaID, string(payload))
	if err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

// Metrics returns the stored metrics for a (job, schema) pair.
func (s *Store) Metrics(ctx context.Context, jobID, schemaID string) (model.JobMetrics, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM job_metrics WHERE job_id = ? AND schema_id = ?`, jobID, schemaID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.JobMetrics{}, false, nil
	}
	if err != nil {
		return model.JobMetrics{}, false, fmt.Errorf("query metrics: %w", err)
	}

	var m model.JobMetrics
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return model.JobMetrics{}, false, fmt.Errorf("decode metrics: %w", err)
	}
	return m, true, nil
}

// AppendAudit records a single audit-log entry, an append-only history
// of user-triggered actions (job submitted, job cancelled, mapping
// overridden) distinct from the phase-transition job_events log.
func (s *Store) AppendAudit(ctx context.Context, jobID, action, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (job_id, action, detail, at) VALUES (?, ?, ?, ?)`,
		jobID, action, detail, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}
