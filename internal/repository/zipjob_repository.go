package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"filecollector/internal/domain"
)

type ZipJobRepository struct {
	db *sqlx.DB
}

func NewZipJobRepository(db *sqlx.DB) *ZipJobRepository {
	return &ZipJobRepository{db: db}
}

func (r *ZipJobRepository) Create(ctx context.Context, job *domain.ZipJob) error {
	query := `
        INSERT INTO zip_jobs (id, manifest_key, dest_key, encoding, code)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, job.ID, job.ManifestKey, job.DestKey, job.Encoding, job.Code).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create zip job: %w", err)
	}
	return nil
}

func (r *ZipJobRepository) Get(ctx context.Context, id string) (*domain.ZipJob, error) {
	var job domain.ZipJob
	query := `
        SELECT id, manifest_key, dest_key, encoding, code, result_key, description, error, created_at, updated_at
        FROM zip_jobs WHERE id = $1`

	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zip job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get zip job: %w", err)
	}
	return &job, nil
}

func (r *ZipJobRepository) UpdateStatus(ctx context.Context, id string, status domain.ZipJobStatus) error {
	query := `
        UPDATE zip_jobs
        SET code = $1, result_key = $2, description = $3, error = $4, updated_at = CURRENT_TIMESTAMP
        WHERE id = $5`

	_, err := r.db.ExecContext(ctx, query, status.Code, status.Key, status.Description, status.Error, id)
	if err != nil {
		return fmt.Errorf("failed to update zip job %s: %w", id, err)
	}
	return nil
}

// ListUnfinished возвращает id задач, не дошедших до конечного состояния
func (r *ZipJobRepository) ListUnfinished(ctx context.Context) ([]string, error) {
	ids := []string{}
	query := `SELECT id FROM zip_jobs WHERE code IN ($1, $2) ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &ids, query, domain.ZipCodePending, domain.ZipCodeProcessing); err != nil {
		return nil, fmt.Errorf("failed to list unfinished zip jobs: %w", err)
	}
	return ids, nil
}

func (r *ZipJobRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM zip_jobs WHERE code IN ($1, $2) AND updated_at < $3`

	res, err := r.db.ExecContext(ctx, query, domain.ZipCodeSuccess, domain.ZipCodeFailed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune zip jobs: %w", err)
	}
	return res.RowsAffected()
}
