package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"filecollector/internal/domain"
)

type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) GetByKey(ctx context.Context, key string) (*domain.Task, error) {
	var task domain.Task
	query := `SELECT id, k, name, user_id, limit_people, created_at FROM tasks WHERE k = $1`

	err := r.db.GetContext(ctx, &task, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}
