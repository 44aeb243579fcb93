package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	certmodels "certify/internal/certificate/models"
	"certify/internal/mint/models"
	"certify/pkg/platform/sentinel"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mint_jobs (
	job_id            TEXT PRIMARY KEY,
	certificate_id    TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	course_id         TEXT NOT NULL,
	mint_payload      TEXT NOT NULL,
	priority          INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
	attempts          INTEGER NOT NULL DEFAULT 0,
	retries           INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT,
	last_error_kind   TEXT,
	leased_until      INTEGER,
	worker_id         TEXT,
	pending_tx_id     TEXT,
	blockchain_record TEXT,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL,
	completed_at      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_mint_jobs_dequeue ON mint_jobs (status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_mint_jobs_certificate ON mint_jobs (certificate_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_mint_jobs_lease ON mint_jobs (leased_until) WHERE leased_until IS NOT NULL;
`

// SQLiteStore persists mint jobs in an embedded SQLite database for
// single-node deployments. Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates the schema if needed and returns the store.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("init sqlite queue schema: %w", err)
	}
	// Databases created before pending transactions were tracked lack the column.
	if _, err := db.ExecContext(ctx, `ALTER TABLE mint_jobs ADD COLUMN pending_tx_id TEXT`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column") {
		return nil, fmt.Errorf("add sqlite pending_tx_id column: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Enqueue(ctx context.Context, job *models.Job) (uuid.UUID, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal mint payload: %w", err)
	}
	now := s.now().UTC()
	created := job.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mint_jobs (job_id, certificate_id, user_id, course_id, mint_payload, priority,
			status, attempts, retries, pending_tx_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, 0, NULLIF(?, ''), ?, ?)
	`, job.ID.String(), job.CertificateID, job.UserID, job.CourseID, string(payload), job.Priority,
		job.PendingTxID, created.UnixNano(), now.UnixNano())
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue mint job: %w", err)
	}
	return job.ID, nil
}

func (s *SQLiteStore) DequeueNext(ctx context.Context, workerID string, lease time.Duration) (*models.Job, error) {
	now := s.now().UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE mint_jobs
		SET status = 'processing', worker_id = ?, leased_until = ?, updated_at = ?
		WHERE job_id = (
			SELECT job_id FROM mint_jobs
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC, rowid ASC
			LIMIT 1
		)
		RETURNING `+jobColumns, workerID, now.Add(lease).UnixNano(), now.UnixNano())
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrEmpty
		}
		return nil, fmt.Errorf("dequeue mint job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id uuid.UUID, workerID string, record *certmodels.BlockchainRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal blockchain record: %w", err)
	}
	now := s.now().UTC().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'completed', blockchain_record = ?, attempts = attempts + 1, pending_tx_id = NULL,
			completed_at = ?, updated_at = ?, leased_until = NULL, worker_id = NULL
		WHERE job_id = ? AND status = 'processing' AND worker_id = ?
	`, string(raw), now, now, id.String(), workerID)
	if err != nil {
		return fmt.Errorf("mark mint job completed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id uuid.UUID, workerID string, failure models.Failure) error {
	var demote sql.NullInt64
	if failure.DemoteTo != nil {
		demote = sql.NullInt64{Int64: int64(*failure.DemoteTo), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'failed', attempts = attempts + 1, last_error = ?, last_error_kind = ?,
			priority = COALESCE(?, priority),
			pending_tx_id = CASE WHEN ? THEN NULLIF(?, '') ELSE COALESCE(NULLIF(?, ''), pending_tx_id) END,
			updated_at = ?, leased_until = NULL, worker_id = NULL
		WHERE job_id = ? AND (
			(? = '' AND status = 'pending') OR
			(status = 'processing' AND worker_id = ?)
		)
	`, failure.Message, string(failure.Kind), demote, failure.ClearTx, failure.TxID, failure.TxID,
		s.now().UTC().UnixNano(), id.String(), workerID, workerID)
	if err != nil {
		return fmt.Errorf("mark mint job failed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) RetryFailed(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := inArgs(ids)
	args = append([]any{s.now().UTC().UnixNano()}, args...)
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'pending', retries = retries + 1, updated_at = ?
		WHERE status = 'failed' AND job_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed mint jobs: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) ReclaimStale(ctx context.Context, now time.Time) (int, error) {
	n := now.UTC().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'pending', leased_until = NULL, worker_id = NULL, updated_at = ?
		WHERE status = 'processing' AND leased_until < ?
	`, n, n)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale mint jobs: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) Purge(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := inArgs(ids)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM mint_jobs
		WHERE status IN ('failed', 'completed') AND job_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("purge mint jobs: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) Stats(ctx context.Context) (models.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM mint_jobs GROUP BY status`)
	if err != nil {
		return models.Stats{}, fmt.Errorf("count mint jobs: %w", err)
	}
	defer rows.Close()
	var stats models.Stats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return models.Stats{}, fmt.Errorf("scan mint job count: %w", err)
		}
		stats.Add(models.Status(status), n)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM mint_jobs WHERE job_id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find mint job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) FindLatestForCertificate(ctx context.Context, certificateID string) (*models.Job, error) {
	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM mint_jobs
		WHERE certificate_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, certificateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find mint job by certificate: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM mint_jobs
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC, rowid ASC
		LIMIT ?
	`, string(status), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list mint jobs: %w", err)
	}
	defer rows.Close()
	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mint job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mint_jobs WHERE job_id = ?`, id.String()).Scan(&count); err != nil {
		return fmt.Errorf("check mint job: %w", err)
	}
	if count == 0 {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func scanSQLiteJob(row jobRow) (*models.Job, error) {
	var (
		job         models.Job
		id          string
		payload     string
		status      string
		lastError   sql.NullString
		lastKind    sql.NullString
		leasedUntil sql.NullInt64
		workerID    sql.NullString
		pendingTx   sql.NullString
		record      sql.NullString
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(&id, &job.CertificateID, &job.UserID, &job.CourseID, &payload, &job.Priority, &status,
		&job.Attempts, &job.Retries, &lastError, &lastKind, &leasedUntil, &workerID,
		&pendingTx, &record, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.ID = parsed
	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal mint payload: %w", err)
	}
	job.Status = models.Status(status)
	job.LastError = lastError.String
	job.LastErrorKind = anchorKind(lastKind.String)
	job.WorkerID = workerID.String
	job.PendingTxID = pendingTx.String
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if leasedUntil.Valid {
		t := time.Unix(0, leasedUntil.Int64).UTC()
		job.LeasedUntil = &t
	}
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		job.CompletedAt = &t
	}
	if record.Valid && record.String != "" {
		var rec certmodels.BlockchainRecord
		if err := json.Unmarshal([]byte(record.String), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal blockchain record: %w", err)
		}
		job.Record = &rec
	}
	return &job, nil
}

func inArgs(ids []uuid.UUID) (string, []any) {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id.String())
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

var _ Store = (*SQLiteStore)(nil)
