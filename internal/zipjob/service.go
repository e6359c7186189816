// Package zipjob собирает архивы по манифесту в фоне и хранит состояние задач в базе.
package zipjob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/simplifiedchinese"

	"filecollector/internal/domain"
	"filecollector/internal/metrics"
	"filecollector/internal/service/s3"
)

const failedDescription = "zip failed: "

var ErrQueueFull = errors.New("zip queue is full")

type Repository interface {
	Create(ctx context.Context, job *domain.ZipJob) error
	Get(ctx context.Context, id string) (*domain.ZipJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.ZipJobStatus) error
	ListUnfinished(ctx context.Context) ([]string, error)
}

// ObjectStore часть хранилища, нужная воркеру
type ObjectStore interface {
	GetObject(ctx context.Context, key string) (s3.S3Object, error)
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
}

type Config struct {
	Workers      int
	QueueSize    int
	FetchTimeout time.Duration
}

type Service struct {
	repo    Repository
	storage ObjectStore
	client  *http.Client
	metrics *metrics.Metrics
	queue   chan string
	workers int
}

func NewService(repo Repository, storage ObjectStore, m *metrics.Metrics, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Minute
	}

	return &Service{
		repo:    repo,
		storage: storage,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		metrics: m,
		queue:   make(chan string, cfg.QueueSize),
		workers: cfg.Workers,
	}
}

// SubmitZipJob сохраняет задачу с кодом 1 и ставит ее в очередь без ожидания
func (s *Service) SubmitZipJob(ctx context.Context, manifestKey, destKey, encoding string) (string, error) {
	job := &domain.ZipJob{
		ID:          uuid.NewString(),
		ManifestKey: manifestKey,
		DestKey:     destKey,
		Encoding:    encoding,
		Code:        domain.ZipCodePending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return "", err
	}

	select {
	case s.queue <- job.ID:
	default:
		s.finish(ctx, job.ID, domain.ZipJobStatus{
			Code:        domain.ZipCodeFailed,
			Description: failedDescription,
			Error:       ErrQueueFull.Error(),
		})
		return "", ErrQueueFull
	}

	log.Debug().Str("job", job.ID).Str("manifest", manifestKey).Msg("zip job queued")
	return job.ID, nil
}

func (s *Service) PollZipJob(ctx context.Context, id string) (domain.ZipJobStatus, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.ZipJobStatus{}, err
	}
	return job.Status(), nil
}

// Run запускает воркеры и возвращает незавершенные задачи в очередь.
// Блокируется до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	ids, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load unfinished zip jobs")
	} else if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("resuming unfinished zip jobs")
	}
	for _, id := range ids {
		select {
		case s.queue <- id:
		case <-ctx.Done():
		}
	}

	wg.Wait()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.process(ctx, id)
		}
	}
}

func (s *Service) process(ctx context.Context, id string) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("job", id).Msg("failed to load zip job")
		return
	}

	if err := s.repo.UpdateStatus(ctx, id, domain.ZipJobStatus{Code: domain.ZipCodeProcessing}); err != nil {
		log.Warn().Err(err).Str("job", id).Msg("failed to mark zip job as processing")
	}

	start := time.Now()
	if err := s.build(ctx, job); err != nil {
		log.Error().Err(err).Str("job", id).Msg("zip job failed")
		s.finish(ctx, id, domain.ZipJobStatus{
			Code:        domain.ZipCodeFailed,
			Description: failedDescription,
			Error:       err.Error(),
		})
		return
	}

	log.Info().
		Str("job", id).
		Str("key", job.DestKey).
		Dur("took", time.Since(start)).
		Msg("zip job finished")
	s.finish(ctx, id, domain.ZipJobStatus{Code: domain.ZipCodeSuccess, Key: job.DestKey})
}

// finish пишет конечный статус даже после отмены контекста
func (s *Service) finish(ctx context.Context, id string, status domain.ZipJobStatus) {
	if err := s.repo.UpdateStatus(context.WithoutCancel(ctx), id, status); err != nil {
		log.Error().Err(err).Str("job", id).Int("code", status.Code).Msg("failed to store zip job status")
	}
	s.metrics.ZipJobFinished(status.Code)
}

func (s *Service) build(ctx context.Context, job *domain.ZipJob) error {
	obj, err := s.storage.GetObject(ctx, job.ManifestKey)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	data, err := io.ReadAll(obj)
	obj.Close()
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	entries, err := ParseManifest(data)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("manifest %s is empty", job.ManifestKey)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		if err := s.addEntry(ctx, zw, e, job.Encoding); err != nil {
			zw.Close()
			return fmt.Errorf("%s: %w", e.Alias, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	if err := s.storage.UploadObject(ctx, job.DestKey, buf.Bytes(), "application/zip"); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	return nil
}

func (s *Service) addEntry(ctx context.Context, zw *zip.Writer, e Entry, encoding string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	name, nonUTF8 := entryName(e.Alias, encoding)
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
		NonUTF8:  nonUTF8,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// entryName кодирует имя для архиваторов, не понимающих UTF-8.
// Имя, которое нельзя выразить в GBK, остается в UTF-8.
func entryName(alias, encoding string) (string, bool) {
	if !strings.EqualFold(encoding, "gbk") {
		return alias, false
	}
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(alias)
	if err != nil {
		return alias, false
	}
	return encoded, true
}
