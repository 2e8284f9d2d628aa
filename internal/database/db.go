package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var ErrNotFound = errors.New("record not found")

//go:embed schema.sql
var schema string

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// EnsureSchema creates the tables if they do not exist yet.
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *PostgresDB) SaveEvidence(ctx context.Context, obj *EvidenceObject) error {
	query := `
        INSERT INTO evidence_objects (id, user_id, stored_path, filename, content_type, size, uploaded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := p.db.ExecContext(ctx, query,
		obj.ID,
		obj.UserID,
		obj.StoredPath,
		obj.Filename,
		obj.ContentType,
		obj.Size,
		obj.UploadedAt,
	)
	return err
}

func (p *PostgresDB) GetEvidence(ctx context.Context, storedPath string) (*EvidenceObject, error) {
	query := `
        SELECT id, user_id, stored_path, filename, content_type, size, uploaded_at
        FROM evidence_objects
        WHERE stored_path = $1
    `
	var obj EvidenceObject
	err := p.db.QueryRowContext(ctx, query, storedPath).Scan(
		&obj.ID,
		&obj.UserID,
		&obj.StoredPath,
		&obj.Filename,
		&obj.ContentType,
		&obj.Size,
		&obj.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (p *PostgresDB) DeleteEvidence(ctx context.Context, storedPath, userID string) error {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM evidence_objects WHERE stored_path = $1 AND user_id = $2`,
		storedPath, userID,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertVerification writes one pending submission. CreatedAt is filled in
// from the database.
func (p *PostgresDB) InsertVerification(ctx context.Context, rec *VerificationRecord) error {
	query := `
        INSERT INTO verifications (id, user_id, identity_document_url, address_document_url, selfie_image_url, status, submitted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at
    `
	return p.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.IdentityDocumentURL,
		rec.AddressDocumentURL,
		rec.SelfieImageURL,
		rec.Status,
		rec.SubmittedAt,
	).Scan(&rec.CreatedAt)
}

const verificationColumns = `id, user_id, identity_document_url, address_document_url, selfie_image_url, status, submitted_at, created_at`

func scanVerification(row *sql.Row) (*VerificationRecord, error) {
	var rec VerificationRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.IdentityDocumentURL,
		&rec.AddressDocumentURL,
		&rec.SelfieImageURL,
		&rec.Status,
		&rec.SubmittedAt,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresDB) GetVerification(ctx context.Context, id string) (*VerificationRecord, error) {
	return scanVerification(p.db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE id = $1`, id))
}

func (p *PostgresDB) LatestVerification(ctx context.Context, userID string) (*VerificationRecord, error) {
	return scanVerification(p.db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE user_id = $1 ORDER BY submitted_at DESC LIMIT 1`, userID))
}

// SetVerificationSubmitted upserts the profile flag.
func (p *PostgresDB) SetVerificationSubmitted(ctx context.Context, userID string, submitted bool) error {
	query := `
        INSERT INTO users (id, verification_submitted, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (id) DO UPDATE
        SET verification_submitted = EXCLUDED.verification_submitted, updated_at = NOW()
    `
	_, err := p.db.ExecContext(ctx, query, userID, submitted)
	return err
}

func (p *PostgresDB) GetUserStatus(ctx context.Context, userID string) (*UserStatus, error) {
	st := UserStatus{UserID: userID}
	err := p.db.QueryRowContext(ctx,
		`SELECT is_verified, verification_submitted FROM users WHERE id = $1`, userID,
	).Scan(&st.IsVerified, &st.VerificationSubmitted)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &st, nil
}

func (p *PostgresDB) InsertNotification(ctx context.Context, n *Notification) error {
	query := `
        INSERT INTO notifications (id, user_id, type, title, content, is_read)
        VALUES ($1, $2, $3, $4, $5, FALSE)
        RETURNING created_at
    `
	return p.db.QueryRowContext(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Content).Scan(&n.CreatedAt)
}

func (p *PostgresDB) CreateProcessingJob(ctx context.Context, verificationID string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO verification_jobs (verification_id) VALUES ($1) RETURNING id`,
		verificationID,
	).Scan(&id)
	return id, err
}

const jobColumns = `id, verification_id, status, retry_count, max_retries, error_message, thumbnails, created_at, updated_at, completed_at`

func scanJob(row *sql.Row) (*ProcessingJob, error) {
	var job ProcessingJob
	err := row.Scan(
		&job.ID,
		&job.VerificationID,
		&job.Status,
		&job.RetryCount,
		&job.MaxRetries,
		&job.ErrorMessage,
		pq.Array(&job.Thumbnails),
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetNextPendingJob claims the oldest pending job and marks it processing.
// It returns nil, nil when the queue is empty.
func (p *PostgresDB) GetNextPendingJob(ctx context.Context) (*ProcessingJob, error) {
	query := `
        UPDATE verification_jobs
        SET status = 'processing', updated_at = NOW()
        WHERE id = (
            SELECT id FROM verification_jobs
            WHERE status = 'pending'
            ORDER BY created_at
            FOR UPDATE SKIP LOCKED
            LIMIT 1
        )
        RETURNING ` + jobColumns
	job, err := scanJob(p.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (p *PostgresDB) GetJobByVerificationID(ctx context.Context, verificationID string) (*ProcessingJob, error) {
	job, err := scanJob(p.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM verification_jobs WHERE verification_id = $1 ORDER BY id DESC LIMIT 1`,
		verificationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// FailJob records errorMsg and puts the job back in the queue until its
// retries are used up.
func (p *PostgresDB) FailJob(ctx context.Context, jobID int64, errorMsg string) error {
	query := `
        UPDATE verification_jobs
        SET retry_count = retry_count + 1,
            status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
            error_message = $2,
            updated_at = NOW()
        WHERE id = $1
    `
	_, err := p.db.ExecContext(ctx, query, jobID, errorMsg)
	return err
}

func (p *PostgresDB) CompleteJob(ctx context.Context, jobID int64, thumbnails []string) error {
	query := `
        UPDATE verification_jobs
        SET status = 'completed', thumbnails = $2, error_message = '', updated_at = NOW(), completed_at = NOW()
        WHERE id = $1
    `
	_, err := p.db.ExecContext(ctx, query, jobID, pq.Array(thumbnails))
	return err
}
