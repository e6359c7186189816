// storage.go
package s3

import (
	"context"
	"io"
	"time"
)

// S3Object определяет интерфейс для объектов S3
type S3Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// s3Object реализует интерфейс S3Object
type s3Object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *s3Object) ContentLength() int64 {
	return o.contentLength
}

func (o *s3Object) ContentType() string {
	return o.contentType
}

// ObjectInfo метаданные объекта из HeadObject или ListObjectsV2
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// DeleteResult результат удаления одного ключа в пакетной операции
type DeleteResult struct {
	Key     string
	OK      bool
	Code    string
	Message string
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем
type Storage interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
	// BatchDeleteObjects возвращает ошибку только при сбое транспорта,
	// отказы по отдельным ключам приходят в результатах
	BatchDeleteObjects(ctx context.Context, keys []string) ([]DeleteResult, error)
	CreateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) (S3Object, error)
	ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
