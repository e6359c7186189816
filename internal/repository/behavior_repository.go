package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"filecollector/internal/domain"
)

type BehaviorRepository struct {
	db *sqlx.DB
}

func NewBehaviorRepository(db *sqlx.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

func (r *BehaviorRepository) Insert(ctx context.Context, b domain.Behavior) error {
	data := []byte("{}")
	if len(b.Data) > 0 {
		var err error
		if data, err = json.Marshal(b.Data); err != nil {
			return fmt.Errorf("failed to encode behavior data: %w", err)
		}
	}

	query := `INSERT INTO behaviors (module, msg, data, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, b.Module, b.Msg, string(data), b.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert behavior: %w", err)
	}
	return nil
}
