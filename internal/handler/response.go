package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"filecollector/internal/domain"
)

// Коды конверта ответа
const (
	codeOK             = 0
	codeInvalidParams  = 1001
	codeUnauthorized   = 1002
	codeNotFound       = 3001
	codeContentMissing = 3002
	codeNothingToZip   = 3003
	codeConflict       = 3004
	codeUnavailable    = 3005
	codeUpstreamFailed = 500
	codeInternal       = 5000
)

type envelope struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Code: codeOK, Msg: "ok", Data: data})
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	log.Debug().Err(err).Msg("authorization failed")
	writeJSON(w, http.StatusUnauthorized, envelope{Code: codeUnauthorized, Msg: "unauthorized"})
}

// writeError переводит ошибку в HTTP статус и код конверта
func writeError(w http.ResponseWriter, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("code", code).Msg("request failed")
	}
	writeJSON(w, status, envelope{Code: code, Msg: msg})
}

func classify(err error) (int, int, string) {
	var upstream *domain.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return http.StatusInternalServerError, codeUpstreamFailed, upstream.Message
	case errors.Is(err, domain.ErrInvalidParams):
		return http.StatusBadRequest, codeInvalidParams, "invalid params"
	case errors.Is(err, domain.ErrContentMissing):
		return http.StatusNotFound, codeContentMissing, "file has been removed from storage"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "not found"
	case errors.Is(err, domain.ErrNothingToArchive):
		return http.StatusBadRequest, codeNothingToZip, "nothing to archive"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, codeConflict, "file is being modified, retry later"
	case errors.Is(err, domain.ErrUpstreamTransient):
		return http.StatusServiceUnavailable, codeUnavailable, "storage temporarily unavailable"
	case errors.Is(err, domain.ErrUpstreamFatal):
		return http.StatusInternalServerError, codeUpstreamFailed, err.Error()
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrInvalidParams
	}
	return nil
}
