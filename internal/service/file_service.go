package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"filecollector/internal/domain"
	"filecollector/internal/service/s3"
)

const behaviorModule = "file"

type FileServiceConfig struct {
	ObjectPrefix   string
	TempPrefix     string
	LinkTTL        time.Duration
	DefaultTaskKey string
}

type FileService struct {
	files     SubmissionStore
	tasks     TaskStore
	people    PersonStore
	storage   s3.Storage
	resolver  *Resolver
	guard     *DeletionGuard
	archive   *ArchiveBuilder
	tracker   *ArchiveTracker
	behaviors BehaviorSink
	cfg       FileServiceConfig
	now       func() time.Time
}

func NewFileService(
	files SubmissionStore,
	tasks TaskStore,
	people PersonStore,
	storage s3.Storage,
	resolver *Resolver,
	guard *DeletionGuard,
	archive *ArchiveBuilder,
	tracker *ArchiveTracker,
	behaviors BehaviorSink,
	cfg FileServiceConfig,
) *FileService {
	return &FileService{
		files:     files,
		tasks:     tasks,
		people:    people,
		storage:   storage,
		resolver:  resolver,
		guard:     guard,
		archive:   archive,
		tracker:   tracker,
		behaviors: behaviors,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithdrawRequest описывает отзываемую отправку
type WithdrawRequest struct {
	TaskKey    string          `json:"taskKey"`
	TaskName   string          `json:"taskName"`
	Filename   string          `json:"filename"`
	Hash       string          `json:"hash"`
	PersonName string          `json:"peopleName"`
	Info       domain.InfoList `json:"info"`
}

// SubmitInfo сохраняет запись о загруженном файле
func (s *FileService) SubmitInfo(ctx context.Context, sub domain.Submission) (*domain.Submission, error) {
	if sub.TaskKey == "" || sub.Name == "" || sub.Hash == "" {
		return nil, domain.ErrInvalidParams
	}

	task, err := s.tasks.GetByKey(ctx, sub.TaskKey)
	if err != nil {
		s.behaviors.Record(behaviorModule, "submit file: invalid task", map[string]interface{}{"taskKey": sub.TaskKey})
		return nil, err
	}

	sub.ID = 0
	sub.OwnerID = task.OwnerID
	sub.SubmittedAt = s.now()
	sub.LegacyKey = ""
	sub.Name = NormalizeFileName(sub.Name)
	if sub.OriginName == "" {
		sub.OriginName = sub.Name
	}
	if sub.TaskName == "" {
		sub.TaskName = task.Name
	}
	if sub.Info == nil {
		sub.Info = domain.InfoList{}
	}

	if err := s.files.Insert(ctx, &sub); err != nil {
		return nil, err
	}

	if sub.PersonName != "" {
		s.markPersonSubmitted(ctx, sub.TaskKey, sub.PersonName)
	}

	s.behaviors.Record(behaviorModule, fmt.Sprintf("submit file %s", sub.Name), map[string]interface{}{
		"taskKey": sub.TaskKey,
		"name":    sub.Name,
		"hash":    sub.Hash,
	})
	return &sub, nil
}

func (s *FileService) markPersonSubmitted(ctx context.Context, taskKey, name string) {
	people, err := s.people.Find(ctx, domain.PersonFilter{TaskKey: taskKey, Name: name})
	if err != nil {
		log.Warn().Err(err).Str("task", taskKey).Str("person", name).Msg("failed to load person")
		return
	}
	if len(people) == 0 {
		return
	}

	status := domain.PersonSubmitted
	now := s.now()
	err = s.people.Update(ctx, people[0].ID, domain.PersonUpdate{
		Status:         &status,
		SubmitCountInc: 1,
		LastSubmitDate: &now,
	})
	if err != nil {
		log.Warn().Err(err).Int64("person", people[0].ID).Msg("failed to update person status")
	}
}

// List возвращает все записи владельца
func (s *FileService) List(ctx context.Context, ownerID string) ([]domain.Submission, error) {
	return s.files.Find(ctx, domain.SubmissionFilter{OwnerID: ownerID})
}

func (s *FileService) findOwned(ctx context.Context, ownerID string, id int64) (*domain.Submission, error) {
	files, err := s.files.Find(ctx, domain.SubmissionFilter{IDs: []int64{id}, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("file %d: %w", id, domain.ErrNotFound)
	}
	return &files[0], nil
}

// link выдает ссылку на объект записи с типом содержимого
func (s *FileService) link(ctx context.Context, rec domain.Submission) (*domain.DownloadLink, error) {
	key, err := s.resolver.Resolve(ctx, rec)
	if err != nil {
		return nil, err
	}

	var mimeType string
	if info, err := s.storage.StatObject(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to stat object")
	} else {
		mimeType = info.ContentType
	}

	url, err := s.storage.CreateDownloadURL(ctx, key, s.cfg.LinkTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}
	return &domain.DownloadLink{Link: url, MimeType: mimeType}, nil
}

// DownloadOne выдает ссылку на один файл владельца
func (s *FileService) DownloadOne(ctx context.Context, ownerID string, id int64) (*domain.DownloadLink, error) {
	rec, err := s.findOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	link, err := s.link(ctx, *rec)
	if err != nil {
		if errors.Is(err, domain.ErrContentMissing) {
			s.behaviors.Record(behaviorModule, fmt.Sprintf("download failed: %s removed from storage", rec.Name), map[string]interface{}{"id": id})
		}
		return nil, err
	}

	s.behaviors.Record(behaviorModule, fmt.Sprintf("download %s", rec.Name), map[string]interface{}{"id": id, "mimeType": link.MimeType})
	return link, nil
}

// DeleteOne удаляет запись, объект удаляется только если на него больше никто не ссылается
func (s *FileService) DeleteOne(ctx context.Context, ownerID string, id int64) (*DeleteReport, error) {
	rec, err := s.findOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	report, err := s.guard.Delete(ctx, []domain.Submission{*rec})
	if err != nil {
		return nil, err
	}

	s.behaviors.Record(behaviorModule, fmt.Sprintf("delete %s", rec.Name), map[string]interface{}{
		"taskKey":   rec.TaskKey,
		"hash":      rec.Hash,
		"deleted":   len(report.Deleted),
		"preserved": len(report.Preserved),
	})
	return report, nil
}

// Withdraw удаляет отправки человека с точно таким же содержимым формы
func (s *FileService) Withdraw(ctx context.Context, req WithdrawRequest) (*DeleteReport, error) {
	if req.TaskKey == "" || req.Filename == "" || req.Hash == "" {
		return nil, domain.ErrInvalidParams
	}

	files, err := s.files.Find(ctx, domain.SubmissionFilter{
		TaskKey:  req.TaskKey,
		TaskName: req.TaskName,
		Name:     req.Filename,
		Hash:     req.Hash,
	})
	if err != nil {
		return nil, err
	}

	var passFiles []domain.Submission
	for _, f := range files {
		if IsSameContent(f.Info, req.Info) && f.PersonName == req.PersonName {
			passFiles = append(passFiles, f)
		}
	}
	if len(passFiles) == 0 {
		s.behaviors.Record(behaviorModule, fmt.Sprintf("withdraw failed: %s %s info mismatch", req.PersonName, req.Filename), map[string]interface{}{
			"taskKey": req.TaskKey,
		})
		return nil, fmt.Errorf("withdraw %s: %w", req.Filename, domain.ErrNotFound)
	}

	report, err := s.guard.Delete(ctx, passFiles)
	if err != nil {
		return nil, err
	}

	if req.PersonName != "" {
		s.refreshPerson(ctx, req.TaskKey, req.PersonName)
	}

	s.behaviors.Record(behaviorModule, fmt.Sprintf("withdraw %s", req.Filename), map[string]interface{}{
		"taskKey":   req.TaskKey,
		"records":   len(passFiles),
		"deleted":   len(report.Deleted),
		"preserved": len(report.Preserved),
	})
	return report, nil
}

// refreshPerson пересчитывает статус: 1 если у человека остались записи в задаче
func (s *FileService) refreshPerson(ctx context.Context, taskKey, name string) {
	people, err := s.people.Find(ctx, domain.PersonFilter{TaskKey: taskKey, Name: name})
	if err != nil {
		log.Warn().Err(err).Str("task", taskKey).Str("person", name).Msg("failed to load person")
		return
	}
	if len(people) == 0 {
		log.Warn().Str("task", taskKey).Str("person", name).Msg("person not found after withdraw")
		s.behaviors.Record(behaviorModule, fmt.Sprintf("person %s not found", name), map[string]interface{}{"taskKey": taskKey})
		return
	}

	remaining, err := s.files.HasPersonSubmissions(ctx, taskKey, name)
	if err != nil {
		log.Warn().Err(err).Str("task", taskKey).Str("person", name).Msg("failed to check remaining files")
		return
	}

	status := domain.PersonPending
	if remaining {
		status = domain.PersonSubmitted
	}
	now := s.now()
	if err := s.people.Update(ctx, people[0].ID, domain.PersonUpdate{Status: &status, LastSubmitDate: &now}); err != nil {
		log.Warn().Err(err).Int64("person", people[0].ID).Msg("failed to update person status")
	}
}

// BatchDownload запускает сжатие найденных файлов владельца
func (s *FileService) BatchDownload(ctx context.Context, ownerID string, ids []int64, zipName string) (*domain.ArchiveJob, error) {
	if len(ids) == 0 {
		return nil, domain.ErrInvalidParams
	}

	files, err := s.files.Find(ctx, domain.SubmissionFilter{IDs: ids, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("batch download: %w", domain.ErrNotFound)
	}

	seen := make(map[string]struct{}, len(files))
	keys := make([]string, 0, len(files))
	missing := 0
	for _, f := range files {
		key, err := s.resolver.Resolve(ctx, f)
		if errors.Is(err, domain.ErrContentMissing) {
			missing++
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if missing > 0 {
		log.Warn().Int("missing", missing).Int("total", len(files)).Msg("some files are missing from storage")
	}
	if len(keys) == 0 {
		s.behaviors.Record(behaviorModule, "batch download failed: all files removed from storage", map[string]interface{}{"count": len(files)})
		return nil, fmt.Errorf("batch download: %w", domain.ErrContentMissing)
	}

	name := NormalizeFileName(zipName)
	if name == "" {
		name = uuid.NewString()
	}

	job, err := s.archive.Build(ctx, keys, name)
	if err != nil {
		return nil, err
	}

	s.behaviors.Record(behaviorModule, fmt.Sprintf("batch download job %s", job.JobID), map[string]interface{}{
		"files":   len(keys),
		"missing": missing,
	})
	return job, nil
}

func (s *FileService) CompressStatus(ctx context.Context, jobID string) (*domain.ZipJobStatus, error) {
	status, err := s.tracker.Poll(ctx, jobID)
	if err != nil {
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) {
			log.Error().Str("job", jobID).Str("reason", upstream.Message).Msg("compression job failed")
		}
		return status, err
	}
	return status, nil
}

// BatchDelete удаляет записи владельца; пустой результат поиска не ошибка
func (s *FileService) BatchDelete(ctx context.Context, ownerID string, ids []int64) (*DeleteReport, error) {
	if len(ids) == 0 {
		return &DeleteReport{Deleted: []string{}, Preserved: []string{}}, nil
	}

	files, err := s.files.Find(ctx, domain.SubmissionFilter{IDs: ids, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}

	report, err := s.guard.Delete(ctx, files)
	if err != nil {
		return nil, err
	}

	if report.Records > 0 {
		s.behaviors.Record(behaviorModule, "batch delete", map[string]interface{}{
			"records":   report.Records,
			"deleted":   len(report.Deleted),
			"preserved": len(report.Preserved),
			"failed":    len(report.Failed),
		})
	}
	return report, nil
}

// CompressDownload выдает ссылку только на готовые архивы во временном каталоге
func (s *FileService) CompressDownload(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, s.cfg.TempPrefix) ||
		strings.HasPrefix(key, s.cfg.TempPrefix+manifestDir) ||
		!strings.HasSuffix(key, ".zip") ||
		strings.Contains(key, "..") {
		s.behaviors.Record(behaviorModule, "compressed download rejected", map[string]interface{}{"key": key})
		return "", fmt.Errorf("archive %s: %w", key, domain.ErrNotFound)
	}

	url, err := s.storage.CreateDownloadURL(ctx, key, s.cfg.LinkTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}

	s.behaviors.Record(behaviorModule, "compressed download", map[string]interface{}{
		"filename": key[strings.LastIndex(key, "/")+1:],
	})
	return url, nil
}

// HasSubmitted проверяет, отправлял ли человек форму с тем же содержимым
func (s *FileService) HasSubmitted(ctx context.Context, taskKey, personName string, info domain.InfoList) (bool, error) {
	files, err := s.files.Find(ctx, domain.SubmissionFilter{TaskKey: taskKey, PersonName: &personName})
	if err != nil {
		return false, err
	}

	count := 0
	for _, f := range files {
		if IsSameContent(f.Info, info) {
			count++
		}
	}

	s.behaviors.Record(behaviorModule, "check submitted", map[string]interface{}{"taskKey": taskKey, "count": count})
	return count > 0, nil
}

func (s *FileService) studentFiles(ctx context.Context, taskKey, personName string, sid int64) ([]domain.Submission, error) {
	files, err := s.files.Find(ctx, domain.SubmissionFilter{TaskKey: taskKey, PersonName: &personName})
	if err != nil {
		return nil, err
	}

	matched := files[:0]
	for _, f := range files {
		if MatchesStudentID(f, sid) {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func (s *FileService) HasStudentSubmitted(ctx context.Context, taskKey, personName string, sid int64) (bool, error) {
	files, err := s.studentFiles(ctx, taskKey, personName, sid)
	if err != nil {
		return false, err
	}

	s.behaviors.Record(behaviorModule, "check student submitted", map[string]interface{}{"taskKey": taskKey, "sid": sid, "count": len(files)})
	return len(files) > 0, nil
}

// LatestByStudent выдает ссылку на самую свежую отправку студента
func (s *FileService) LatestByStudent(ctx context.Context, taskKey, personName string, sid int64) (*domain.DownloadLink, error) {
	if taskKey == "" {
		taskKey = s.cfg.DefaultTaskKey
	}

	files, err := s.studentFiles(ctx, taskKey, personName, sid)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.behaviors.Record(behaviorModule, fmt.Sprintf("student %d download failed: no files", sid), map[string]interface{}{"taskKey": taskKey})
		return nil, fmt.Errorf("student %d: %w", sid, domain.ErrNotFound)
	}

	latest := files[0]
	for _, f := range files[1:] {
		if f.SubmittedAt.After(latest.SubmittedAt) {
			latest = f
		}
	}

	link, err := s.link(ctx, latest)
	if err != nil {
		return nil, err
	}
	link.Info = latest.Info

	s.behaviors.Record(behaviorModule, fmt.Sprintf("student %d download %s", sid, latest.Name), map[string]interface{}{"taskKey": taskKey})
	return link, nil
}

// TemplateLink выдает ссылку на файл-шаблон задачи
func (s *FileService) TemplateLink(ctx context.Context, taskKey, template string) (string, error) {
	if taskKey == "" || template == "" || strings.Contains(template, "/") {
		return "", domain.ErrInvalidParams
	}

	key := taskKey + "_template/" + template
	if s.cfg.ObjectPrefix != "" {
		key = s.cfg.ObjectPrefix + "/" + key
	}

	exists, err := s.storage.ObjectExists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}
	if !exists {
		return "", fmt.Errorf("template %s: %w", template, domain.ErrNotFound)
	}

	url, err := s.storage.CreateDownloadURL(ctx, key, s.cfg.LinkTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}

	s.behaviors.Record(behaviorModule, fmt.Sprintf("download template %s", template), map[string]interface{}{"taskKey": taskKey})
	return url, nil
}
