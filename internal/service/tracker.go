package service

import (
	"context"
	"errors"
	"fmt"

	"filecollector/internal/domain"
)

// ArchiveTracker передает состояние задачи сжатия вызывающему
type ArchiveTracker struct {
	jobs ZipJobs
}

func NewArchiveTracker(jobs ZipJobs) *ArchiveTracker {
	return &ArchiveTracker{jobs: jobs}
}

// Poll не ждет завершения: незавершенная задача возвращается как есть.
// Код domain.ZipCodeFailed становится ошибкой с текстом desc+error.
func (t *ArchiveTracker) Poll(ctx context.Context, jobID string) (*domain.ZipJobStatus, error) {
	if jobID == "" {
		return nil, domain.ErrInvalidParams
	}

	status, err := t.jobs.PollZipJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}

	if status.Code == domain.ZipCodeFailed {
		return &status, &domain.UpstreamError{Message: status.Description + status.Error}
	}
	return &status, nil
}
