package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"filecollector/internal/service/s3"
)

type ZipJobPruner interface {
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupService удаляет устаревшие архивы и манифесты из временного каталога
type CleanupService struct {
	storage    s3.Storage
	jobs       ZipJobPruner
	tempPrefix string
	retention  time.Duration
	now        func() time.Time
}

func NewCleanupService(storage s3.Storage, jobs ZipJobPruner, tempPrefix string, retention time.Duration) *CleanupService {
	return &CleanupService{
		storage:    storage,
		jobs:       jobs,
		tempPrefix: tempPrefix,
		retention:  retention,
		now:        time.Now,
	}
}

func (s *CleanupService) AutoCleanup(ctx context.Context) error {
	cutoff := s.now().Add(-s.retention)

	objects, err := s.storage.ListPrefix(ctx, s.tempPrefix)
	if err != nil {
		return fmt.Errorf("failed to list temp packages: %w", err)
	}

	var expired []string
	for _, o := range objects {
		if o.LastModified.Before(cutoff) {
			expired = append(expired, o.Key)
		}
	}

	if len(expired) > 0 {
		results, err := s.storage.BatchDeleteObjects(ctx, expired)
		if err != nil {
			return fmt.Errorf("failed to delete temp packages: %w", err)
		}
		for _, r := range results {
			if !r.OK {
				log.Warn().Str("key", r.Key).Str("code", r.Code).Msg("failed to delete expired temp package")
			}
		}
	}

	pruned, err := s.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune zip jobs: %w", err)
	}

	log.Info().Int("objects", len(expired)).Int64("jobs", pruned).Msg("temp package cleanup finished")
	return nil
}
