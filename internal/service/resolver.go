package service

import (
	"context"
	"fmt"

	"filecollector/internal/domain"
	"filecollector/internal/service/s3"
)

// Resolver определяет ключ объекта в хранилище для записи
type Resolver struct {
	storage s3.Storage
	prefix  string
}

func NewResolver(storage s3.Storage, prefix string) *Resolver {
	return &Resolver{storage: storage, prefix: prefix}
}

// DerivedKey ключ по текущей схеме адресации
func (r *Resolver) DerivedKey(rec domain.Submission) string {
	key := rec.TaskKey + "/" + rec.Hash + "/" + rec.Name
	if r.prefix != "" {
		return r.prefix + "/" + key
	}
	return key
}

// Resolve предпочитает существующий старый ключ, иначе проверяет производный.
// Если нет ни того ни другого, возвращает domain.ErrContentMissing.
func (r *Resolver) Resolve(ctx context.Context, rec domain.Submission) (string, error) {
	if rec.LegacyKey != "" {
		exists, err := r.storage.ObjectExists(ctx, rec.LegacyKey)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
		}
		if exists {
			return rec.LegacyKey, nil
		}
	}

	key := r.DerivedKey(rec)
	exists, err := r.storage.ObjectExists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", domain.ErrContentMissing, rec.Name)
	}
	return key, nil
}
