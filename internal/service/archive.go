package service

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"filecollector/internal/domain"
	"filecollector/internal/metrics"
	"filecollector/internal/service/s3"
	"filecollector/internal/zipjob"
)

// символы, которые заменяются в именах внутри архива
var aliasReplacer = strings.NewReplacer("•", "·")

// каталог манифестов внутри временного префикса, наружу не выдается
const manifestDir = "manifests/"

// ArchiveBuilder собирает манифест и отправляет задачу сжатия, не дожидаясь результата
type ArchiveBuilder struct {
	storage    s3.Storage
	jobs       ZipJobs
	metrics    *metrics.Metrics
	linkTTL    time.Duration
	tempPrefix string
	encoding   string
	now        func() time.Time
}

func NewArchiveBuilder(
	storage s3.Storage,
	jobs ZipJobs,
	m *metrics.Metrics,
	linkTTL time.Duration,
	tempPrefix string,
	encoding string,
) *ArchiveBuilder {
	return &ArchiveBuilder{
		storage:    storage,
		jobs:       jobs,
		metrics:    m,
		linkTTL:    linkTTL,
		tempPrefix: tempPrefix,
		encoding:   encoding,
		now:        time.Now,
	}
}

// ResolveAliases возвращает по одному уникальному имени на каждый ключ, в том же порядке
func ResolveAliases(keys []string) []string {
	assigned := make(map[string]struct{}, len(keys))
	aliases := make([]string, 0, len(keys))

	for _, key := range keys {
		base := aliasReplacer.Replace(aliasFromKey(key))
		name, ext := splitExt(base)

		alias := base
		for i := 1; ; i++ {
			if _, taken := assigned[alias]; !taken {
				break
			}
			alias = name + "_" + strconv.Itoa(i) + ext
		}
		assigned[alias] = struct{}{}
		aliases = append(aliases, alias)
	}
	return aliases
}

// aliasFromKey последний сегмент ключа без кодирования пути
func aliasFromKey(key string) string {
	base := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		base = key[i+1:]
	}
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	if base == "" {
		base = "file"
	}
	return base
}

// splitExt: у ".env" расширения нет
func splitExt(base string) (string, string) {
	ext := path.Ext(base)
	if ext == base {
		return base, ""
	}
	return strings.TrimSuffix(base, ext), ext
}

// Build отправляет задачу сжатия и сразу возвращает ее идентификатор
func (b *ArchiveBuilder) Build(ctx context.Context, keys []string, zipName string) (*domain.ArchiveJob, error) {
	if len(keys) == 0 {
		return nil, domain.ErrNothingToArchive
	}
	if zipName == "" {
		zipName = uuid.NewString()
	}

	aliases := ResolveAliases(keys)
	lines := make([]string, 0, len(keys))
	for i, key := range keys {
		link, err := b.storage.CreateDownloadURL(ctx, key, b.linkTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
		}
		lines = append(lines, zipjob.EncodeLine(link, aliases[i]))
	}

	stamp := b.now().UnixMilli()
	manifestKey := fmt.Sprintf("%s%s%d-%s.txt", b.tempPrefix, manifestDir, stamp, uuid.NewString())
	manifest := []byte(strings.Join(lines, "\n"))
	if err := b.storage.UploadObject(ctx, manifestKey, manifest, "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("%w: upload manifest: %v", domain.ErrUpstreamTransient, err)
	}

	destKey := fmt.Sprintf("%s%d/%s.zip", b.tempPrefix, stamp, zipName)
	jobID, err := b.jobs.SubmitZipJob(ctx, manifestKey, destKey, b.encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: submit zip job: %v", domain.ErrUpstreamTransient, err)
	}
	if jobID == "" {
		return nil, fmt.Errorf("%w: empty job id", domain.ErrUpstreamTransient)
	}

	b.metrics.ArchiveJobsSubmitted.Inc()
	log.Info().
		Str("job", jobID).
		Str("dest", destKey).
		Int("files", len(keys)).
		Msg("archive job submitted")

	return &domain.ArchiveJob{
		JobID:           jobID,
		ResultKeyPrefix: destKey,
		Status:          domain.ArchivePending,
	}, nil
}
