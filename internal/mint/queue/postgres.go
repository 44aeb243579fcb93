package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	certmodels "certify/internal/certificate/models"
	"certify/internal/mint/models"
	"certify/pkg/platform/sentinel"
)

const jobColumns = `job_id, certificate_id, user_id, course_id, mint_payload, priority, status,
	attempts, retries, last_error, last_error_kind, leased_until, worker_id,
	pending_tx_id, blockchain_record, created_at, updated_at, completed_at`

// PostgresStore persists mint jobs in PostgreSQL. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never block on each other.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres constructs a PostgreSQL-backed queue.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Enqueue(ctx context.Context, job *models.Job) (uuid.UUID, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, 0, NULLIF($7, ''), $8, $9)
	`, job.ID, job.CertificateID, job.UserID, job.CourseID, payload, job.Priority, job.PendingTxID, created, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue mint job: %w", err)
	}
	return job.ID, nil
}

func (s *PostgresStore) DequeueNext(ctx context.Context, workerID string, lease time.Duration) (*models.Job, error) {
	now := s.now().UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE mint_jobs
		SET status = 'processing', worker_id = $1, leased_until = $2, updated_at = $3
		WHERE job_id = (
			SELECT job_id FROM mint_jobs
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, workerID, now.Add(lease), now)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrEmpty
		}
		return nil, fmt.Errorf("dequeue mint job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id uuid.UUID, workerID string, record *certmodels.BlockchainRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal blockchain record: %w", err)
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'completed', blockchain_record = $3, attempts = attempts + 1, pending_tx_id = NULL,
			completed_at = $4, updated_at = $4, leased_until = NULL, worker_id = NULL
		WHERE job_id = $1 AND status = 'processing' AND worker_id = $2
	`, id, workerID, raw, now)
	if err != nil {
		return fmt.Errorf("mark mint job completed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, workerID string, failure models.Failure) error {
	var demote sql.NullInt64
	if failure.DemoteTo != nil {
		demote = sql.NullInt64{Int64: int64(*failure.DemoteTo), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'failed', attempts = attempts + 1, last_error = $3, last_error_kind = $4,
			priority = COALESCE($5, priority),
			pending_tx_id = CASE WHEN $8 THEN NULLIF($6, '') ELSE COALESCE(NULLIF($6, ''), pending_tx_id) END,
			updated_at = $7, leased_until = NULL, worker_id = NULL
		WHERE job_id = $1 AND (
			($2 = '' AND status = 'pending') OR
			(status = 'processing' AND worker_id = $2)
		)
	`, id, workerID, failure.Message, string(failure.Kind), demote, failure.TxID, s.now().UTC(), failure.ClearTx)
	if err != nil {
		return fmt.Errorf("mark mint job failed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *PostgresStore) RetryFailed(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'pending', retries = retries + 1, updated_at = $2
		WHERE job_id = ANY($1::uuid[]) AND status = 'failed'
	`, idStrings(ids), s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("retry failed mint jobs: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) ReclaimStale(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mint_jobs
		SET status = 'pending', leased_until = NULL, worker_id = NULL, updated_at = $1
		WHERE status = 'processing' AND leased_until < $1
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale mint jobs: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) Purge(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM mint_jobs
		WHERE job_id = ANY($1::uuid[]) AND status IN ('failed', 'completed')
	`, idStrings(ids))
	if err != nil {
		return 0, fmt.Errorf("purge mint jobs: %w", err)
	}
	return affected(res)
}

func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
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

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM mint_jobs WHERE job_id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find mint job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) FindLatestForCertificate(ctx context.Context, certificateID string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM mint_jobs
		WHERE certificate_id = $1
		ORDER BY created_at DESC
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

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM mint_jobs
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
	`, string(status), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list mint jobs: %w", err)
	}
	defer rows.Close()
	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mint job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// checkTransition distinguishes a missing job from a status mismatch when an
// update matched no rows.
func (s *PostgresStore) checkTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM mint_jobs WHERE job_id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check mint job: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

type jobRow interface {
	Scan(dest ...any) error
}

func scanJob(row jobRow) (*models.Job, error) {
	var (
		job         models.Job
		payload     []byte
		status      string
		lastError   sql.NullString
		lastKind    sql.NullString
		leasedUntil sql.NullTime
		workerID    sql.NullString
		pendingTx   sql.NullString
		record      []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.CertificateID, &job.UserID, &job.CourseID, &payload, &job.Priority, &status,
		&job.Attempts, &job.Retries, &lastError, &lastKind, &leasedUntil, &workerID,
		&pendingTx, &record, &job.CreatedAt, &job.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal mint payload: %w", err)
	}
	job.Status = models.Status(status)
	job.LastError = lastError.String
	job.LastErrorKind = anchorKind(lastKind.String)
	job.WorkerID = workerID.String
	job.PendingTxID = pendingTx.String
	if leasedUntil.Valid {
		t := leasedUntil.Time.UTC()
		job.LeasedUntil = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	if len(record) > 0 {
		var rec certmodels.BlockchainRecord
		if err := json.Unmarshal(record, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal blockchain record: %w", err)
		}
		job.Record = &rec
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}

var _ Store = (*PostgresStore)(nil)
