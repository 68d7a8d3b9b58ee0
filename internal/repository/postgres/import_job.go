package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/prospect-crm/internal/domain"
)

// ErrImportJobNotFound is returned by ImportJobRepo.Get for unknown IDs.
var ErrImportJobNotFound = domain.ErrImportJobNotFound

// ImportJobRepo journals commit attempts in crm_import_jobs.
type ImportJobRepo struct{ db *sql.DB }

// NewImportJobRepo creates a Postgres-backed import journal.
func NewImportJobRepo(db *sql.DB) *ImportJobRepo { return &ImportJobRepo{db: db} }

// Start records a running job and returns its ID.
func (r *ImportJobRepo) Start(ctx context.Context, job *domain.ImportJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_import_jobs (id, session_id, filename, imported_by, status, total_companies, started_at)
		VALUES ($1, $2, $3, $4, 'running', $5, NOW())
	`, job.ID, job.SessionID, job.Filename, job.ImportedBy, job.Total)
	if err != nil {
		return "", fmt.Errorf("create import job: %w", err)
	}
	job.Status = domain.ImportJobRunning
	return job.ID, nil
}

// Complete closes a job with the written counts.
func (r *ImportJobRepo) Complete(ctx context.Context, id string, counts domain.ImportCounts) error {
	return r.finish(ctx, id, domain.ImportJobCompleted, counts, "")
}

// Fail closes a job with the partial counts and the failure message.
func (r *ImportJobRepo) Fail(ctx context.Context, id string, counts domain.ImportCounts, msg string) error {
	return r.finish(ctx, id, domain.ImportJobFailed, counts, msg)
}

func (r *ImportJobRepo) finish(ctx context.Context, id string, status domain.ImportJobStatus, c domain.ImportCounts, msg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_import_jobs
		SET status = $1, companies_count = $2, contacts_count = $3, phones_count = $4,
		    error_message = NULLIF($5,''), completed_at = NOW()
		WHERE id = $6
	`, string(status), c.Companies, c.Contacts, c.Phones, msg, id)
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrImportJobNotFound
	}
	return nil
}

// Get returns a single job.
func (r *ImportJobRepo) Get(ctx context.Context, id string) (*domain.ImportJob, error) {
	j := &domain.ImportJob{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, filename, imported_by, status, total_companies,
		       companies_count, contacts_count, phones_count,
		       COALESCE(error_message,''), started_at, completed_at
		FROM crm_import_jobs
		WHERE id = $1
	`, id).Scan(
		&j.ID, &j.SessionID, &j.Filename, &j.ImportedBy, &j.Status, &j.Total,
		&j.Counts.Companies, &j.Counts.Contacts, &j.Counts.Phones,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrImportJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return j, nil
}
