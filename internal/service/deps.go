package service

import (
	"context"

	"filecollector/internal/domain"
)

// SubmissionStore коллаборатор хранения записей о файлах
type SubmissionStore interface {
	Find(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, error)
	Insert(ctx context.Context, s *domain.Submission) error
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	CountByTriple(ctx context.Context, t domain.ContentTriple) (int, error)
	CountByLegacyKey(ctx context.Context, key string) (int, error)
	HasPersonSubmissions(ctx context.Context, taskKey, personName string) (bool, error)
}

type TaskStore interface {
	GetByKey(ctx context.Context, key string) (*domain.Task, error)
}

type PersonStore interface {
	Find(ctx context.Context, f domain.PersonFilter) ([]domain.Person, error)
	Update(ctx context.Context, id int64, upd domain.PersonUpdate) error
	InsertNames(ctx context.Context, taskKey, ownerID string, names []string) error
}

// ZipJobs асинхронный сервис сжатия по манифесту
type ZipJobs interface {
	SubmitZipJob(ctx context.Context, manifestKey, destKey, encoding string) (string, error)
	PollZipJob(ctx context.Context, jobID string) (domain.ZipJobStatus, error)
}

// BehaviorSink принимает события без ожидания
type BehaviorSink interface {
	Record(module, msg string, data map[string]interface{})
}
