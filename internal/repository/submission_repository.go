package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"filecollector/internal/domain"
)

const submissionColumns = `id, task_key, task_name, name, origin_name, hash, size, category_key, people, info, user_id, date`

type SubmissionRepository struct {
	db *sqlx.DB
}

func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// whereClause собирает условия по заполненным полям фильтра
func whereClause(f domain.SubmissionFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.IDs) > 0 {
		add("id = ANY($%d)", pq.Array(f.IDs))
	}
	if f.TaskKey != "" {
		add("task_key = $%d", f.TaskKey)
	}
	if f.TaskName != "" {
		add("task_name = $%d", f.TaskName)
	}
	if f.Name != "" {
		add("name = $%d", f.Name)
	}
	if f.Hash != "" {
		add("hash = $%d", f.Hash)
	}
	if f.PersonName != nil {
		add("people = $%d", *f.PersonName)
	}
	if f.OwnerID != "" {
		add("user_id = $%d", f.OwnerID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Find возвращает записи по фильтру, новые первыми
func (r *SubmissionRepository) Find(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, error) {
	where, args := whereClause(f)
	query := `SELECT ` + submissionColumns + ` FROM files` + where + ` ORDER BY id DESC`

	files := []domain.Submission{}
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	return files, nil
}

func (r *SubmissionRepository) Insert(ctx context.Context, s *domain.Submission) error {
	query := `
        INSERT INTO files (task_key, task_name, name, origin_name, hash, size, category_key, people, info, user_id, date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id`

	err := r.db.QueryRowContext(
		ctx,
		query,
		s.TaskKey,
		s.TaskName,
		s.Name,
		s.OriginName,
		s.Hash,
		s.Size,
		s.LegacyKey,
		s.PersonName,
		s.Info,
		s.OwnerID,
		s.SubmittedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete files: %w", err)
	}
	return res.RowsAffected()
}

// CountByTriple считает все записи, ссылающиеся на одно содержимое
func (r *SubmissionRepository) CountByTriple(ctx context.Context, t domain.ContentTriple) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM files WHERE task_key = $1 AND hash = $2 AND name = $3`

	if err := r.db.GetContext(ctx, &count, query, t.TaskKey, t.Hash, t.Name); err != nil {
		return 0, fmt.Errorf("failed to count files by content: %w", err)
	}
	return count, nil
}

func (r *SubmissionRepository) CountByLegacyKey(ctx context.Context, key string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM files WHERE category_key = $1`, key); err != nil {
		return 0, fmt.Errorf("failed to count files by legacy key: %w", err)
	}
	return count, nil
}

// HasPersonSubmissions проверяет, осталась ли у человека хоть одна запись в задаче
func (r *SubmissionRepository) HasPersonSubmissions(ctx context.Context, taskKey, personName string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM files WHERE task_key = $1 AND people = $2)`

	if err := r.db.GetContext(ctx, &exists, query, taskKey, personName); err != nil {
		return false, fmt.Errorf("failed to check person files: %w", err)
	}
	return exists, nil
}
