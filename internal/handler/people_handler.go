package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"filecollector/internal/domain"
	"filecollector/internal/service"
)

type PeopleAPI interface {
	List(ctx context.Context, ownerID, taskKey string) ([]domain.Person, error)
	Check(ctx context.Context, taskKey, name string) (bool, error)
	Import(ctx context.Context, ownerID, taskKey string, names []string) (*service.ImportResult, error)
}

type PeopleHandler struct {
	people PeopleAPI
	auth   TokenVerifier
}

func NewPeopleHandler(people PeopleAPI, auth TokenVerifier) *PeopleHandler {
	return &PeopleHandler{people: people, auth: auth}
}

func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	people, err := h.people.List(r.Context(), userID, chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"people": people})
}

// Check публичный: проверка, что имя есть в списке участников задачи
func (h *PeopleHandler) Check(w http.ResponseWriter, r *http.Request) {
	ok, err := h.people.Check(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]bool{"exist": ok})
}

func (h *PeopleHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	var req struct {
		Names []string `json:"names"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.people.Import(r.Context(), userID, chi.URLParam(r, "key"), req.Names)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, res)
}
