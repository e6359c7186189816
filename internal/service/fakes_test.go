package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"filecollector/internal/domain"
	"filecollector/internal/lock"
	"filecollector/internal/metrics"
	"filecollector/internal/service/s3"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]s3.ObjectInfo
	uploads map[string][]byte
	refuse  map[string]string
	deleted []string
	probes  []string

	singleDeletes int
	batchDeletes  int
	// сколько ключей батча успевает удалиться до batchErr
	batchErrAfter int

	existsErr  error
	deleteErr  error
	batchErr   error
	uploadErr  error
	presignErr error
}

func newFakeStorage(keys ...string) *fakeStorage {
	s := &fakeStorage{
		objects: make(map[string]s3.ObjectInfo),
		uploads: make(map[string][]byte),
		refuse:  make(map[string]string),
	}
	for _, k := range keys {
		s.put(k, "text/plain", time.Now())
	}
	return s
}

func (s *fakeStorage) put(key, contentType string, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = s3.ObjectInfo{Key: key, ContentType: contentType, LastModified: modified}
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = append(s.probes, key)
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) StatObject(_ context.Context, key string) (*s3.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.objects[key]
	if !ok {
		return nil, s3.ErrObjectNotFound
	}
	return &info, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singleDeletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStorage) BatchDeleteObjects(_ context.Context, keys []string) ([]s3.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchDeletes++
	if s.batchErr != nil && s.batchErrAfter == 0 {
		return nil, s.batchErr
	}
	results := make([]s3.DeleteResult, 0, len(keys))
	for i, k := range keys {
		if s.batchErr != nil && i == s.batchErrAfter {
			return results, s.batchErr
		}
		if code, ok := s.refuse[k]; ok {
			results = append(results, s3.DeleteResult{Key: k, Code: code, Message: "refused"})
			continue
		}
		delete(s.objects, k)
		s.deleted = append(s.deleted, k)
		results = append(results, s3.DeleteResult{Key: k, OK: true})
	}
	return results, nil
}

func (s *fakeStorage) CreateDownloadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return "https://cdn.example.com/" + key + "?ttl=" + ttl.String(), nil
}

func (s *fakeStorage) UploadObject(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads[key] = append([]byte(nil), data...)
	s.objects[key] = s3.ObjectInfo{Key: key, ContentType: contentType, LastModified: time.Now()}
	return nil
}

type readCloser struct{ io.Reader }

func (readCloser) Close() error { return nil }

type memObject struct {
	readCloser
	size int64
}

func (o memObject) ContentLength() int64 { return o.size }
func (o memObject) ContentType() string  { return "application/octet-stream" }

func (s *fakeStorage) GetObject(_ context.Context, key string) (s3.S3Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.uploads[key]
	if !ok {
		return nil, s3.ErrObjectNotFound
	}
	return memObject{readCloser{bytes.NewReader(data)}, int64(len(data))}, nil
}

func (s *fakeStorage) ListPrefix(_ context.Context, prefix string) ([]s3.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []s3.ObjectInfo
	for k, o := range s.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type fakeFiles struct {
	mu        sync.Mutex
	nextID    int64
	rows      []domain.Submission
	deleteErr error
}

func (f *fakeFiles) add(s domain.Submission) domain.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if s.ID == 0 {
		s.ID = f.nextID
	}
	f.rows = append(f.rows, s)
	return s
}

func (f *fakeFiles) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.ID)
	}
	return out
}

func (f *fakeFiles) Find(_ context.Context, flt domain.SubmissionFilter) ([]domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[int64]bool, len(flt.IDs))
	for _, id := range flt.IDs {
		ids[id] = true
	}
	var out []domain.Submission
	for _, r := range f.rows {
		switch {
		case len(ids) > 0 && !ids[r.ID],
			flt.TaskKey != "" && r.TaskKey != flt.TaskKey,
			flt.TaskName != "" && r.TaskName != flt.TaskName,
			flt.Name != "" && r.Name != flt.Name,
			flt.Hash != "" && r.Hash != flt.Hash,
			flt.PersonName != nil && r.PersonName != *flt.PersonName,
			flt.OwnerID != "" && r.OwnerID != flt.OwnerID:
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeFiles) Insert(_ context.Context, s *domain.Submission) error {
	saved := f.add(*s)
	s.ID = saved.ID
	return nil
}

func (f *fakeFiles) DeleteByIDs(_ context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.rows[:0]
	var n int64
	for _, r := range f.rows {
		if drop[r.ID] {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeFiles) CountByTriple(_ context.Context, t domain.ContentTriple) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.Triple() == t {
			n++
		}
	}
	return n, nil
}

func (f *fakeFiles) CountByLegacyKey(_ context.Context, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.LegacyKey == key {
			n++
		}
	}
	return n, nil
}

func (f *fakeFiles) HasPersonSubmissions(_ context.Context, taskKey, personName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TaskKey == taskKey && r.PersonName == personName {
			return true, nil
		}
	}
	return false, nil
}

type fakeTasks map[string]*domain.Task

func (t fakeTasks) GetByKey(_ context.Context, key string) (*domain.Task, error) {
	task, ok := t[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

type personUpdate struct {
	id  int64
	upd domain.PersonUpdate
}

type fakePeople struct {
	mu       sync.Mutex
	rows     []domain.Person
	updates  []personUpdate
	inserted []string
}

func (p *fakePeople) Find(_ context.Context, f domain.PersonFilter) ([]domain.Person, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Person
	for _, r := range p.rows {
		if (f.TaskKey == "" || r.TaskKey == f.TaskKey) &&
			(f.Name == "" || r.Name == f.Name) &&
			(f.OwnerID == "" || r.OwnerID == f.OwnerID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *fakePeople) Update(_ context.Context, id int64, upd domain.PersonUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, personUpdate{id: id, upd: upd})
	return nil
}

func (p *fakePeople) InsertNames(_ context.Context, taskKey, ownerID string, names []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inserted = append(p.inserted, names...)
	return nil
}

type submittedJob struct {
	manifestKey string
	destKey     string
	encoding    string
}

type fakeZipJobs struct {
	mu        sync.Mutex
	submitted []submittedJob
	statuses  map[string]domain.ZipJobStatus
	submitErr error
	pollErr   error
}

func (z *fakeZipJobs) SubmitZipJob(_ context.Context, manifestKey, destKey, encoding string) (string, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.submitErr != nil {
		return "", z.submitErr
	}
	z.submitted = append(z.submitted, submittedJob{manifestKey, destKey, encoding})
	return "job-1", nil
}

func (z *fakeZipJobs) PollZipJob(_ context.Context, jobID string) (domain.ZipJobStatus, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.pollErr != nil {
		return domain.ZipJobStatus{}, z.pollErr
	}
	status, ok := z.statuses[jobID]
	if !ok {
		return domain.ZipJobStatus{}, domain.ErrNotFound
	}
	return status, nil
}

type fakeBehaviors struct {
	mu   sync.Mutex
	msgs []string
}

func (b *fakeBehaviors) Record(_ string, msg string, _ map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

var errTransport = errors.New("connection reset by peer")

type testEnv struct {
	storage   *fakeStorage
	files     *fakeFiles
	tasks     fakeTasks
	people    *fakePeople
	jobs      *fakeZipJobs
	behaviors *fakeBehaviors
	locker    *lock.LocalLocker
	metrics   *metrics.Metrics
	resolver  *Resolver
	guard     *DeletionGuard
	archive   *ArchiveBuilder
	service   *FileService
}

const testTempPrefix = "temp_package/"

func newTestEnv(objects ...string) *testEnv {
	env := &testEnv{
		storage:   newFakeStorage(objects...),
		files:     &fakeFiles{},
		tasks:     fakeTasks{"T1": {Key: "T1", Name: "homework", OwnerID: "u1"}},
		people:    &fakePeople{},
		jobs:      &fakeZipJobs{statuses: map[string]domain.ZipJobStatus{}},
		behaviors: &fakeBehaviors{},
		locker:    lock.NewLocalLocker(),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	env.resolver = NewResolver(env.storage, "")
	env.guard = NewDeletionGuard(env.files, env.storage, env.locker, env.resolver, env.metrics)
	env.archive = NewArchiveBuilder(env.storage, env.jobs, env.metrics, 12*time.Hour, testTempPrefix, "gbk")
	env.service = NewFileService(
		env.files,
		env.tasks,
		env.people,
		env.storage,
		env.resolver,
		env.guard,
		env.archive,
		NewArchiveTracker(env.jobs),
		env.behaviors,
		FileServiceConfig{TempPrefix: testTempPrefix, LinkTTL: 12 * time.Hour, DefaultTaskKey: "T1"},
	)
	return env
}

func submission(person, name, hash string) domain.Submission {
	return domain.Submission{
		TaskKey:     "T1",
		TaskName:    "homework",
		Name:        name,
		Hash:        hash,
		PersonName:  person,
		OwnerID:     "u1",
		Info:        domain.InfoList{},
		SubmittedAt: time.Now(),
	}
}
