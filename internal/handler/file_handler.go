package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"filecollector/internal/domain"
	"filecollector/internal/service"
)

// TokenVerifier достает id владельца из запроса
type TokenVerifier interface {
	VerifyToken(r *http.Request) (string, error)
}

type FileAPI interface {
	SubmitInfo(ctx context.Context, sub domain.Submission) (*domain.Submission, error)
	List(ctx context.Context, ownerID string) ([]domain.Submission, error)
	TemplateLink(ctx context.Context, taskKey, template string) (string, error)
	DownloadOne(ctx context.Context, ownerID string, id int64) (*domain.DownloadLink, error)
	DeleteOne(ctx context.Context, ownerID string, id int64) (*service.DeleteReport, error)
	Withdraw(ctx context.Context, req service.WithdrawRequest) (*service.DeleteReport, error)
	BatchDownload(ctx context.Context, ownerID string, ids []int64, zipName string) (*domain.ArchiveJob, error)
	CompressStatus(ctx context.Context, jobID string) (*domain.ZipJobStatus, error)
	BatchDelete(ctx context.Context, ownerID string, ids []int64) (*service.DeleteReport, error)
	CompressDownload(ctx context.Context, key string) (string, error)
	HasSubmitted(ctx context.Context, taskKey, personName string, info domain.InfoList) (bool, error)
	HasStudentSubmitted(ctx context.Context, taskKey, personName string, sid int64) (bool, error)
	LatestByStudent(ctx context.Context, taskKey, personName string, sid int64) (*domain.DownloadLink, error)
}

type FileHandler struct {
	files FileAPI
	auth  TokenVerifier
}

func NewFileHandler(files FileAPI, auth TokenVerifier) *FileHandler {
	return &FileHandler{files: files, auth: auth}
}

type idRequest struct {
	ID int64 `json:"id"`
}

type idsRequest struct {
	IDs     []int64 `json:"ids"`
	ZipName string  `json:"zipName"`
}

type jobRequest struct {
	JobID string `json:"id"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type peopleRequest struct {
	TaskKey string          `json:"taskKey"`
	Name    string          `json:"name"`
	Info    domain.InfoList `json:"info"`
}

// SubmitInfo сохраняет запись после загрузки файла в хранилище
func (h *FileHandler) SubmitInfo(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := decodeBody(r, &sub); err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.files.SubmitInfo(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, saved)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	files, err := h.files.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"files": files})
}

func (h *FileHandler) Template(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	link, err := h.files.TemplateLink(r.Context(), q.Get("key"), q.Get("template"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"link": link})
}

func (h *FileHandler) DownloadOne(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, domain.ErrInvalidParams)
		return
	}

	link, err := h.files.DownloadOne(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, link)
}

func (h *FileHandler) DeleteOne(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	var req idRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.files.DeleteOne(r.Context(), userID, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, report)
}

// Withdraw публичный: отправитель подтверждает запись содержимым формы
func (h *FileHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req service.WithdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.files.Withdraw(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, report)
}

func (h *FileHandler) BatchDownload(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	job, err := h.files.BatchDownload(r.Context(), userID, req.IDs, req.ZipName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, job)
}

func (h *FileHandler) CompressStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.VerifyToken(r); err != nil {
		writeUnauthorized(w, err)
		return
	}

	var req jobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	status, err := h.files.CompressStatus(r.Context(), req.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{
		"code":   status.Code,
		"key":    status.Key,
		"status": status.State(),
	})
}

func (h *FileHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.files.BatchDelete(r.Context(), userID, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, report)
}

func (h *FileHandler) CompressDownload(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.VerifyToken(r); err != nil {
		writeUnauthorized(w, err)
		return
	}

	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	link, err := h.files.CompressDownload(r.Context(), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]string{"url": link})
}

func (h *FileHandler) HasSubmitted(w http.ResponseWriter, r *http.Request) {
	var req peopleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ok, err := h.files.HasSubmitted(r.Context(), req.TaskKey, req.Name, req.Info)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]bool{"isSubmit": ok})
}

func (h *FileHandler) HasStudentSubmitted(w http.ResponseWriter, r *http.Request) {
	sid, err := strconv.ParseInt(chi.URLParam(r, "sid"), 10, 64)
	if err != nil {
		writeError(w, domain.ErrInvalidParams)
		return
	}

	var req peopleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ok, err := h.files.HasStudentSubmitted(r.Context(), req.TaskKey, req.Name, sid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]bool{"isSubmit": ok})
}

func (h *FileHandler) LatestByStudent(w http.ResponseWriter, r *http.Request) {
	sid, err := strconv.ParseInt(chi.URLParam(r, "sid"), 10, 64)
	if err != nil {
		writeError(w, domain.ErrInvalidParams)
		return
	}

	q := r.URL.Query()
	link, err := h.files.LatestByStudent(r.Context(), q.Get("key"), q.Get("name"), sid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, link)
}
