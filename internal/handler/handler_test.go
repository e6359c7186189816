package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filecollector/internal/auth"
	"filecollector/internal/domain"
	"filecollector/internal/service"
)

const testSecret = "test-secret"

type stubFiles struct {
	err       error
	owner     string
	ids       []int64
	withdraw  service.WithdrawRequest
	status    *domain.ZipJobStatus
	studentID int64
}

func (s *stubFiles) SubmitInfo(_ context.Context, sub domain.Submission) (*domain.Submission, error) {
	sub.ID = 1
	return &sub, s.err
}

func (s *stubFiles) List(_ context.Context, ownerID string) ([]domain.Submission, error) {
	s.owner = ownerID
	return []domain.Submission{{ID: 1, Name: "a.txt"}}, s.err
}

func (s *stubFiles) TemplateLink(_ context.Context, taskKey, template string) (string, error) {
	return "https://cdn/" + taskKey + "/" + template, s.err
}

func (s *stubFiles) DownloadOne(_ context.Context, ownerID string, id int64) (*domain.DownloadLink, error) {
	s.owner, s.ids = ownerID, []int64{id}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.DownloadLink{Link: "https://cdn/a.txt", MimeType: "text/plain"}, nil
}

func (s *stubFiles) DeleteOne(_ context.Context, ownerID string, id int64) (*service.DeleteReport, error) {
	s.owner, s.ids = ownerID, []int64{id}
	if s.err != nil {
		return nil, s.err
	}
	return &service.DeleteReport{Records: 1, Deleted: []string{}, Preserved: []string{"k"}}, nil
}

func (s *stubFiles) Withdraw(_ context.Context, req service.WithdrawRequest) (*service.DeleteReport, error) {
	s.withdraw = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.DeleteReport{Records: 1}, nil
}

func (s *stubFiles) BatchDownload(_ context.Context, ownerID string, ids []int64, _ string) (*domain.ArchiveJob, error) {
	s.owner, s.ids = ownerID, ids
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ArchiveJob{JobID: "job-1", Status: domain.ArchivePending}, nil
}

func (s *stubFiles) CompressStatus(context.Context, string) (*domain.ZipJobStatus, error) {
	return s.status, s.err
}

func (s *stubFiles) BatchDelete(_ context.Context, ownerID string, ids []int64) (*service.DeleteReport, error) {
	s.owner, s.ids = ownerID, ids
	if s.err != nil {
		return nil, s.err
	}
	return &service.DeleteReport{Records: len(ids)}, nil
}

func (s *stubFiles) CompressDownload(_ context.Context, key string) (string, error) {
	return "https://cdn/" + key, s.err
}

func (s *stubFiles) HasSubmitted(context.Context, string, string, domain.InfoList) (bool, error) {
	return true, s.err
}

func (s *stubFiles) HasStudentSubmitted(_ context.Context, _, _ string, sid int64) (bool, error) {
	s.studentID = sid
	return false, s.err
}

func (s *stubFiles) LatestByStudent(_ context.Context, _, _ string, sid int64) (*domain.DownloadLink, error) {
	s.studentID = sid
	if s.err != nil {
		return nil, s.err
	}
	return &domain.DownloadLink{Link: "https://cdn/x"}, nil
}

type stubPeople struct {
	names []string
}

func (p *stubPeople) List(context.Context, string, string) ([]domain.Person, error) {
	return []domain.Person{{Name: "Alice"}}, nil
}

func (p *stubPeople) Check(_ context.Context, _, name string) (bool, error) {
	return name == "Alice", nil
}

func (p *stubPeople) Import(_ context.Context, _, _ string, names []string) (*service.ImportResult, error) {
	p.names = names
	return &service.ImportResult{Success: len(names), Fail: []string{}}, nil
}

func newTestRouter(files *stubFiles, people *stubPeople) http.Handler {
	verifier := auth.NewVerifier(testSecret)
	return NewRouter(NewFileHandler(files, verifier), NewPeopleHandler(people, verifier), nil)
}

func do(t *testing.T, h http.Handler, method, target, body string, authorized bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		token, err := auth.GenerateToken("u1", []byte(testSecret), time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   int
	}{
		{domain.ErrInvalidParams, http.StatusBadRequest, codeInvalidParams},
		{fmt.Errorf("file 1: %w", domain.ErrNotFound), http.StatusNotFound, codeNotFound},
		{fmt.Errorf("x: %w", domain.ErrContentMissing), http.StatusNotFound, codeContentMissing},
		{domain.ErrNothingToArchive, http.StatusBadRequest, codeNothingToZip},
		{fmt.Errorf("%w: locked", domain.ErrConflict), http.StatusConflict, codeConflict},
		{fmt.Errorf("%w: timeout", domain.ErrUpstreamTransient), http.StatusServiceUnavailable, codeUnavailable},
		{&domain.UpstreamError{Message: "zip failed: boom"}, http.StatusInternalServerError, codeUpstreamFailed},
		{errors.New("db down"), http.StatusInternalServerError, codeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code, _ := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestFileHandler_RequiresToken(t *testing.T) {
	h := newTestRouter(&stubFiles{}, &stubPeople{})

	rec, env := do(t, h, http.MethodGet, "/v1/file/list", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeUnauthorized, env.Code)
	assert.Nil(t, env.Data)
}

func TestFileHandler_List(t *testing.T) {
	files := &stubFiles{}
	h := newTestRouter(files, &stubPeople{})

	rec, env := do(t, h, http.MethodGet, "/v1/file/list", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, codeOK, env.Code)
	assert.Equal(t, "u1", files.owner)
}

func TestFileHandler_DownloadOne(t *testing.T) {
	files := &stubFiles{}
	h := newTestRouter(files, &stubPeople{})

	rec, env := do(t, h, http.MethodGet, "/v1/file/one?id=42", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{42}, files.ids)
	assert.Equal(t, "text/plain", env.Data.(map[string]interface{})["mimeType"])

	rec, env = do(t, h, http.MethodGet, "/v1/file/one?id=abc", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidParams, env.Code)

	files.err = fmt.Errorf("a.txt: %w", domain.ErrContentMissing)
	rec, env = do(t, h, http.MethodGet, "/v1/file/one?id=42", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeContentMissing, env.Code)
}

func TestFileHandler_DeleteConflict(t *testing.T) {
	files := &stubFiles{err: fmt.Errorf("%w: key is locked", domain.ErrConflict)}
	h := newTestRouter(files, &stubPeople{})

	rec, env := do(t, h, http.MethodDelete, "/v1/file/one", `{"id": 5}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeConflict, env.Code)
	assert.Equal(t, []int64{5}, files.ids)
}

func TestFileHandler_WithdrawIsPublic(t *testing.T) {
	files := &stubFiles{}
	h := newTestRouter(files, &stubPeople{})

	body := `{"taskKey":"T1","filename":"a.txt","hash":"h1","peopleName":"Alice","info":"[{\"text\":\"name\",\"value\":\"Alice\"}]"}`
	rec, _ := do(t, h, http.MethodDelete, "/v1/file/withdraw", body, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", files.withdraw.PersonName)
	assert.Equal(t, domain.InfoList{{Label: "name", Value: "Alice"}}, files.withdraw.Info)

	files.err = fmt.Errorf("withdraw: %w", domain.ErrNotFound)
	rec, env := do(t, h, http.MethodDelete, "/v1/file/withdraw", body, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, env.Code)

	rec, env = do(t, h, http.MethodDelete, "/v1/file/withdraw", "{", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidParams, env.Code)
}

func TestFileHandler_BatchDownload(t *testing.T) {
	files := &stubFiles{}
	h := newTestRouter(files, &stubPeople{})

	rec, env := do(t, h, http.MethodPost, "/v1/file/batch/down", `{"ids":[1,2],"zipName":"hw"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, files.ids)
	assert.Equal(t, "job-1", env.Data.(map[string]interface{})["jobId"])
}

func TestFileHandler_CompressStatusFailure(t *testing.T) {
	files := &stubFiles{
		status: &domain.ZipJobStatus{Code: domain.ZipCodeFailed},
		err:    &domain.UpstreamError{Message: "zip failed: source unreachable"},
	}
	h := newTestRouter(files, &stubPeople{})

	rec, env := do(t, h, http.MethodPost, "/v1/file/compress/status", `{"id":"job-1"}`, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, codeUpstreamFailed, env.Code)
	assert.Equal(t, "zip failed: source unreachable", env.Msg)
}

func TestFileHandler_CompressStatusPending(t *testing.T) {
	files := &stubFiles{status: &domain.ZipJobStatus{Code: domain.ZipCodeProcessing}}
	h := newTestRouter(files, &stubPeople{})

	rec, env := do(t, h, http.MethodPost, "/v1/file/compress/status", `{"id":"job-1"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", env.Data.(map[string]interface{})["status"])
}

func TestFileHandler_StudentRoutes(t *testing.T) {
	files := &stubFiles{}
	h := newTestRouter(files, &stubPeople{})

	rec, _ := do(t, h, http.MethodPost, "/v1/file/submit/student/2021001", `{"taskKey":"T1","name":"Alice"}`, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2021001), files.studentID)

	rec, _ = do(t, h, http.MethodGet, "/v1/file/oneStudent/7?name=Alice", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), files.studentID)

	rec, env := do(t, h, http.MethodGet, "/v1/file/oneStudent/x", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidParams, env.Code)
}

func TestPeopleHandler(t *testing.T) {
	people := &stubPeople{}
	h := newTestRouter(&stubFiles{}, people)

	rec, env := do(t, h, http.MethodGet, "/v1/people/check/T1?name=Alice", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.Data.(map[string]interface{})["exist"])

	rec, _ = do(t, h, http.MethodPost, "/v1/people/T1", `{"names":["A","B"]}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = do(t, h, http.MethodPost, "/v1/people/T1", `{"names":["A","B"]}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"A", "B"}, people.names)
	assert.Equal(t, float64(2), env.Data.(map[string]interface{})["success"])
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(&stubFiles{}, &stubPeople{})

	rec, env := do(t, h, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, codeOK, env.Code)
}
