package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"filecollector/internal/domain"
	"filecollector/internal/lock"
	"filecollector/internal/metrics"
	"filecollector/internal/service/s3"
)

// DeleteReport итог удаления набора записей
type DeleteReport struct {
	Records   int               `json:"records"`
	Deleted   []string          `json:"deleted"`
	Preserved []string          `json:"preserved"`
	Failed    []s3.DeleteResult `json:"failed,omitempty"`
}

// DeletionGuard удаляет записи и физические объекты, на которые больше никто не ссылается.
// Счетчика ссылок нет: число ссылок пересчитывается по таблице под блокировкой ключа содержимого.
type DeletionGuard struct {
	files    SubmissionStore
	storage  s3.Storage
	locker   lock.Locker
	resolver *Resolver
	metrics  *metrics.Metrics
}

func NewDeletionGuard(
	files SubmissionStore,
	storage s3.Storage,
	locker lock.Locker,
	resolver *Resolver,
	m *metrics.Metrics,
) *DeletionGuard {
	return &DeletionGuard{
		files:    files,
		storage:  storage,
		locker:   locker,
		resolver: resolver,
		metrics:  m,
	}
}

type deleteGroup struct {
	lockKey   string
	objectKey string
	triple    domain.ContentTriple
	legacy    bool
	deleting  int
	// группа тройки, собранная только из записей со старым ключом:
	// производный объект для них лишь запасной адрес и может не существовать
	fallback bool
	doomed   bool
}

// groupRecords группирует кандидатов: каждую запись по тройке содержимого,
// записи со старым ключом дополнительно по самому ключу.
// Возвращает группы и для каждой записи группы, к которым она относится.
func (g *DeletionGuard) groupRecords(records []domain.Submission) ([]*deleteGroup, map[int64][]*deleteGroup) {
	var groups []*deleteGroup
	byLock := make(map[string]*deleteGroup)
	byRecord := make(map[int64][]*deleteGroup, len(records))

	for _, rec := range records {
		triple := rec.Triple()
		lockKey := "content:" + triple.String()
		grp := byLock[lockKey]
		if grp == nil {
			grp = &deleteGroup{
				lockKey:   lockKey,
				objectKey: g.resolver.DerivedKey(rec),
				triple:    triple,
				fallback:  true,
			}
			byLock[lockKey] = grp
			groups = append(groups, grp)
		}
		// в таблице тройку несут и записи со старым ключом, считаем их тоже
		grp.deleting++
		if !rec.IsLegacy() {
			grp.fallback = false
		}
		byRecord[rec.ID] = append(byRecord[rec.ID], grp)

		if !rec.IsLegacy() {
			continue
		}
		lockKey = "legacy:" + rec.LegacyKey
		if grp = byLock[lockKey]; grp == nil {
			grp = &deleteGroup{lockKey: lockKey, objectKey: rec.LegacyKey, legacy: true}
			byLock[lockKey] = grp
			groups = append(groups, grp)
		}
		grp.deleting++
		byRecord[rec.ID] = append(byRecord[rec.ID], grp)
	}
	return groups, byRecord
}

func (g *DeletionGuard) countReferences(ctx context.Context, grp *deleteGroup) (int, error) {
	if grp.legacy {
		return g.files.CountByLegacyKey(ctx, grp.objectKey)
	}
	return g.files.CountByTriple(ctx, grp.triple)
}

// Delete решает по каждой группе, удалять ли объект, удаляет объекты и только потом записи.
// Кандидаты перечитываются под блокировкой: уже удаленные записи не участвуют в подсчете.
func (g *DeletionGuard) Delete(ctx context.Context, records []domain.Submission) (*DeleteReport, error) {
	records = uniqueByID(records)
	if len(records) == 0 {
		return &DeleteReport{Deleted: []string{}, Preserved: []string{}}, nil
	}

	candidates, _ := g.groupRecords(records)
	lockKeys := make([]string, 0, len(candidates))
	for _, grp := range candidates {
		lockKeys = append(lockKeys, grp.lockKey)
	}

	release, err := lock.AcquireAll(ctx, g.locker, lockKeys)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			g.metrics.DeleteConflicts.Inc()
			return nil, fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}
	defer release()

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	records, err = g.files.Find(ctx, domain.SubmissionFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to reload records: %w", err)
	}

	report := &DeleteReport{Records: len(records), Deleted: []string{}, Preserved: []string{}}
	if len(records) == 0 {
		return report, nil
	}

	groups, byRecord := g.groupRecords(records)

	var doomed []string
	for _, grp := range groups {
		total, err := g.countReferences(ctx, grp)
		if err != nil {
			return nil, fmt.Errorf("failed to count references: %w", err)
		}
		if grp.deleting < total {
			if grp.fallback {
				continue
			}
			report.Preserved = append(report.Preserved, grp.objectKey)
			log.Debug().
				Str("key", grp.objectKey).
				Int("references", total).
				Int("deleting", grp.deleting).
				Msg("object still referenced, preserved")
			continue
		}
		if grp.fallback {
			exists, err := g.storage.ObjectExists(ctx, grp.objectKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
			}
			if !exists {
				continue
			}
		}
		grp.doomed = true
		doomed = append(doomed, grp.objectKey)
	}

	removeErr := g.removeObjects(ctx, doomed, report)

	gone := make(map[string]bool, len(report.Deleted))
	for _, k := range report.Deleted {
		gone[k] = true
	}
	remove := make([]int64, 0, len(records))
	for _, rec := range records {
		if removeErr != nil && !recordReleased(byRecord[rec.ID], gone) {
			continue
		}
		remove = append(remove, rec.ID)
	}
	if len(remove) > 0 {
		if _, err := g.files.DeleteByIDs(ctx, remove); err != nil {
			return nil, fmt.Errorf("failed to delete records: %w", err)
		}
	}

	g.metrics.ObjectsDeleted.Add(float64(len(report.Deleted)))
	if removeErr != nil {
		log.Warn().
			Err(removeErr).
			Int("deleted_objects", len(report.Deleted)).
			Int("deleted_records", len(remove)).
			Msg("object deletion interrupted")
		return nil, removeErr
	}
	g.metrics.ObjectsPreserved.Add(float64(len(report.Preserved)))
	return report, nil
}

// recordReleased: после прерванного удаления запись снимается, только если
// у нее были удаляемые объекты и все они уже удалены
func recordReleased(groups []*deleteGroup, gone map[string]bool) bool {
	released := false
	for _, grp := range groups {
		if !grp.doomed {
			continue
		}
		if !gone[grp.objectKey] {
			return false
		}
		released = true
	}
	return released
}

// removeObjects: ошибка транспорта прерывает удаление, в отчет попадают
// только ключи, удаленные до ошибки. Отказы по отдельным ключам только фиксируются.
func (g *DeletionGuard) removeObjects(ctx context.Context, keys []string, report *DeleteReport) error {
	switch len(keys) {
	case 0:
		return nil
	case 1:
		if err := g.storage.DeleteObject(ctx, keys[0]); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
		}
		report.Deleted = append(report.Deleted, keys[0])
		return nil
	}

	results, err := g.storage.BatchDeleteObjects(ctx, keys)
	for _, res := range results {
		if res.OK {
			report.Deleted = append(report.Deleted, res.Key)
			continue
		}
		report.Failed = append(report.Failed, res)
		g.metrics.DeleteFailures.Inc()
		log.Warn().
			Str("key", res.Key).
			Str("code", res.Code).
			Str("message", res.Message).
			Msg("storage refused to delete object")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}
	return nil
}

func uniqueByID(records []domain.Submission) []domain.Submission {
	seen := make(map[int64]struct{}, len(records))
	out := make([]domain.Submission, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}
