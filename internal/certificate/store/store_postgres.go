package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"certify/internal/certificate/models"
	"certify/pkg/platform/sentinel"
)

const certificateColumns = `id, certificate_id, certificate_number, verification_code, user_id, course_id,
	student_name, student_email, recipient_address, course_name, instructor_name, completion_date,
	grade, score, achievements, completion_time_hours, qr_payload, document_url,
	metadata_content_hash, integrity_hash, blockchain_record, queue_job_id, is_valid, revoked_at,
	scan_count, last_scanned_at, created_at, updated_at`

const uniqueViolation = "23505"

// PostgresStore persists certificates in PostgreSQL. The partial unique index
// on (user_id, course_id) WHERE is_valid resolves concurrent issuance.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed certificate store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, cert *models.Certificate) (*models.Certificate, bool, error) {
	achievements, err := json.Marshal(nonNil(cert.Achievements))
	if err != nil {
		return nil, false, fmt.Errorf("marshal achievements: %w", err)
	}
	record, err := marshalRecord(cert.BlockchainRecord)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO certificates (certificate_id, certificate_number, verification_code, user_id, course_id,
			student_name, student_email, recipient_address, course_name, instructor_name, completion_date,
			grade, score, achievements, completion_time_hours, qr_payload, document_url,
			metadata_content_hash, integrity_hash, blockchain_record, queue_job_id, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, TRUE)
		ON CONFLICT (user_id, course_id) WHERE is_valid DO NOTHING
		RETURNING ` + certificateColumns

	// A concurrent revoke can remove the conflicting row between the insert
	// and the lookup; one more insert settles it.
	for attempt := 0; attempt < 2; attempt++ {
		stored, err := scanCertificate(s.db.QueryRowContext(ctx, query,
			cert.CertificateID, cert.CertificateNumber, cert.VerificationCode, cert.UserID, cert.CourseID,
			cert.StudentName, cert.StudentEmail, cert.RecipientAddress, cert.CourseName, cert.InstructorName,
			cert.CompletionDate.UTC(), cert.Grade, cert.Score, achievements, cert.CompletionTimeHours,
			cert.QRPayload, cert.DocumentURL, cert.MetadataContentHash, cert.IntegrityHash, record,
			nullString(cert.QueueJobID),
		))
		if err == nil {
			return stored, true, nil
		}
		if isUniqueViolation(err) {
			return nil, false, sentinel.ErrConflict
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("insert certificate: %w", err)
		}

		existing, err := s.FindValidByUserCourse(ctx, cert.UserID, cert.CourseID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, err
		}
	}
	return nil, false, sentinel.ErrConflict
}

func (s *PostgresStore) FindByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error) {
	cert, err := scanCertificate(s.db.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE certificate_id = $1`, certificateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return cert, nil
}

func (s *PostgresStore) FindValidByUserCourse(ctx context.Context, userID, courseID string) (*models.Certificate, error) {
	cert, err := scanCertificate(s.db.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 AND course_id = $2 AND is_valid`,
		userID, courseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate by user and course: %w", err)
	}
	return cert, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*models.Certificate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	certs := make([]*models.Certificate, 0)
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

func (s *PostgresStore) AttachAnchor(ctx context.Context, certificateID string, record *models.BlockchainRecord) error {
	raw, err := marshalRecord(record)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE certificates
		SET blockchain_record = $2, queue_job_id = NULL, updated_at = NOW()
		WHERE certificate_id = $1
	`, certificateID, raw)
	if err != nil {
		return fmt.Errorf("attach anchor: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetQueueJob(ctx context.Context, certificateID, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE certificates SET queue_job_id = $2, updated_at = NOW()
		WHERE certificate_id = $1 AND blockchain_record IS NULL
	`, certificateID, nullString(jobID))
	if err != nil {
		return fmt.Errorf("set queue job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	// Either unknown or already anchored by a worker that won the race.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM certificates WHERE certificate_id = $1)`, certificateID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("set queue job: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, certificateID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE certificates SET is_valid = FALSE, revoked_at = $2, updated_at = NOW()
		WHERE certificate_id = $1 AND is_valid
	`, certificateID, at.UTC())
	if err != nil {
		return fmt.Errorf("revoke certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.FindByCertificateID(ctx, certificateID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) RecordScan(ctx context.Context, certificateID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE certificates SET scan_count = scan_count + 1, last_scanned_at = $2
		WHERE certificate_id = $1
	`, certificateID, at.UTC())
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Stats(ctx context.Context, monthStart time.Time) (models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_valid),
			COUNT(*) FILTER (WHERE NOT is_valid),
			COUNT(*) FILTER (WHERE blockchain_record->>'status' = 'confirmed'),
			COUNT(*) FILTER (WHERE is_valid AND queue_job_id IS NOT NULL
				AND (blockchain_record IS NULL OR blockchain_record->>'status' <> 'confirmed')),
			COUNT(*) FILTER (WHERE created_at >= $1)
		FROM certificates
	`, monthStart.UTC()).Scan(&stats.Total, &stats.Valid, &stats.Revoked, &stats.Anchored,
		&stats.PendingAnchor, &stats.IssuedThisMonth)
	if err != nil {
		return models.Stats{}, fmt.Errorf("certificate stats: %w", err)
	}
	return stats, nil
}

type certificateRow interface {
	Scan(dest ...any) error
}

func scanCertificate(row certificateRow) (*models.Certificate, error) {
	var (
		c             models.Certificate
		achievements  []byte
		record        []byte
		queueJobID    sql.NullString
		revokedAt     sql.NullTime
		lastScannedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.CertificateID, &c.CertificateNumber, &c.VerificationCode, &c.UserID, &c.CourseID,
		&c.StudentName, &c.StudentEmail, &c.RecipientAddress, &c.CourseName, &c.InstructorName, &c.CompletionDate,
		&c.Grade, &c.Score, &achievements, &c.CompletionTimeHours, &c.QRPayload, &c.DocumentURL,
		&c.MetadataContentHash, &c.IntegrityHash, &record, &queueJobID, &c.IsValid, &revokedAt,
		&c.ScanCount, &lastScannedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(achievements) > 0 {
		if err := json.Unmarshal(achievements, &c.Achievements); err != nil {
			return nil, fmt.Errorf("unmarshal achievements: %w", err)
		}
	}
	if len(record) > 0 {
		var rec models.BlockchainRecord
		if err := json.Unmarshal(record, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal blockchain record: %w", err)
		}
		c.BlockchainRecord = &rec
	}
	c.QueueJobID = queueJobID.String
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		c.RevokedAt = &t
	}
	if lastScannedAt.Valid {
		t := lastScannedAt.Time.UTC()
		c.LastScannedAt = &t
	}
	c.CompletionDate = c.CompletionDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func marshalRecord(record *models.BlockchainRecord) ([]byte, error) {
	if record == nil {
		return nil, nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal blockchain record: %w", err)
	}
	return raw, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Store = (*PostgresStore)(nil)
