package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrContentMissing    = errors.New("content missing from storage")
	ErrConflict          = errors.New("concurrent modification of the same content")
	ErrUpstreamTransient = errors.New("storage service temporarily unavailable")
	ErrUpstreamFatal     = errors.New("storage job failed")
	ErrInvalidParams     = errors.New("invalid params")
	ErrNothingToArchive  = errors.New("nothing to archive")
)

// UpstreamError несет текст отказа от сервиса сжатия
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamFatal
}
