package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"filecollector/internal/domain"
)

type PersonRepository struct {
	db *sqlx.DB
}

func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

func (r *PersonRepository) Find(ctx context.Context, f domain.PersonFilter) ([]domain.Person, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.TaskKey != "" {
		add("task_key = $%d", f.TaskKey)
	}
	if f.Name != "" {
		add("name = $%d", f.Name)
	}
	if f.OwnerID != "" {
		add("user_id = $%d", f.OwnerID)
	}

	query := `SELECT id, task_key, user_id, name, status, submit_count, submit_date FROM people`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	people := []domain.Person{}
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select people: %w", err)
	}
	return people, nil
}

// Update применяет только заданные поля
func (r *PersonRepository) Update(ctx context.Context, id int64, upd domain.PersonUpdate) error {
	var sets []string
	var args []interface{}
	if upd.Status != nil {
		args = append(args, *upd.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if upd.SubmitCountInc != 0 {
		args = append(args, upd.SubmitCountInc)
		sets = append(sets, fmt.Sprintf("submit_count = submit_count + $%d", len(args)))
	}
	if upd.LastSubmitDate != nil {
		args = append(args, *upd.LastSubmitDate)
		sets = append(sets, fmt.Sprintf("submit_date = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE people SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update person %d: %w", id, err)
	}
	return nil
}

// InsertNames добавляет участников задачи одной транзакцией
func (r *PersonRepository) InsertNames(ctx context.Context, taskKey, ownerID string, names []string) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO people (task_key, user_id, name) VALUES ($1, $2, $3)`
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, query, taskKey, ownerID, name); err != nil {
			return fmt.Errorf("failed to insert person %s: %w", name, err)
		}
	}

	return tx.Commit()
}
