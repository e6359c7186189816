package domain

import "time"

// Коды состояния задачи сжатия
const (
	ZipCodeSuccess    = 0
	ZipCodePending    = 1
	ZipCodeProcessing = 2
	ZipCodeFailed     = 3
)

type ArchiveStatus string

const (
	ArchivePending ArchiveStatus = "pending"
	ArchiveSuccess ArchiveStatus = "success"
	ArchiveFailed  ArchiveStatus = "failed"
)

// ArchiveJob возвращается вызывающему и не сохраняется ядром
type ArchiveJob struct {
	JobID           string        `json:"jobId"`
	ResultKeyPrefix string        `json:"resultKey"`
	Status          ArchiveStatus `json:"status"`
}

type ZipJobStatus struct {
	Code        int    `json:"code"`
	Key         string `json:"key,omitempty"`
	Description string `json:"desc,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s ZipJobStatus) State() ArchiveStatus {
	switch s.Code {
	case ZipCodeSuccess:
		return ArchiveSuccess
	case ZipCodeFailed:
		return ArchiveFailed
	default:
		return ArchivePending
	}
}

// ZipJob строка таблицы zip_jobs
type ZipJob struct {
	ID          string    `db:"id"`
	ManifestKey string    `db:"manifest_key"`
	DestKey     string    `db:"dest_key"`
	Encoding    string    `db:"encoding"`
	Code        int       `db:"code"`
	ResultKey   string    `db:"result_key"`
	Description string    `db:"description"`
	Error       string    `db:"error"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (j ZipJob) Status() ZipJobStatus {
	return ZipJobStatus{
		Code:        j.Code,
		Key:         j.ResultKey,
		Description: j.Description,
		Error:       j.Error,
	}
}
