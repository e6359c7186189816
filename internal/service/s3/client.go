package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"filecollector/internal/config"
)

const (
	defaultTimeout = 30 * time.Second
	uploadTimeout  = 10 * time.Minute
	// лимит DeleteObjects на один запрос
	maxBatchDelete = 1000
)

// Client предоставляет методы для работы с S3-совместимым хранилищем
type Client struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// NewClient создает новый экземпляр клиента S3
func NewClient(conf config.StorageConfig) (*Client, error) {
	if conf.AccessKeyID == "" || conf.SecretAccessKey == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	options := s3.Options{
		BaseEndpoint:     aws.String(conf.Endpoint),
		Region:           conf.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     true,
	}
	client := s3.New(options)

	// Ссылки подписываются под публичный домен, если он задан
	presignBase := client
	if conf.Domain != "" {
		publicOptions := options.Copy()
		publicOptions.BaseEndpoint = aws.String(conf.Domain)
		presignBase = s3.New(publicOptions)
	}

	s3Client := &Client{
		client:    client,
		presigner: s3.NewPresignClient(presignBase),
		bucket:    conf.Bucket,
	}

	// Проверяем подключение к бакету
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := s3Client.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return s3Client, nil
}

// ObjectExists проверяет наличие объекта через HeadObject
func (h *Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := h.StatObject(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return false, err
}

// StatObject возвращает метаданные объекта
func (h *Client) StatObject(ctx context.Context, key string) (*ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	out, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// DeleteObject удаляет объект из S3, отсутствие объекта не считается ошибкой
func (h *Client) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	return nil
}

// BatchDeleteObjects удаляет ключи пачками через DeleteObjects.
// При ошибке возвращает результаты уже обработанных пачек вместе с ошибкой.
func (h *Client) BatchDeleteObjects(ctx context.Context, keys []string) ([]DeleteResult, error) {
	results := make([]DeleteResult, 0, len(keys))

	for start := 0; start < len(keys); start += maxBatchDelete {
		end := start + maxBatchDelete
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		objects := make([]types.ObjectIdentifier, 0, len(chunk))
		for _, k := range chunk {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		out, err := h.client.DeleteObjects(reqCtx, &s3.DeleteObjectsInput{
			Bucket: aws.String(h.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		cancel()
		if err != nil {
			return results, fmt.Errorf("failed to batch delete objects: %w", err)
		}

		results = append(results, deleteResults(chunk, out.Errors)...)
	}

	return results, nil
}

// deleteResults сопоставляет ошибки DeleteObjects с исходными ключами
func deleteResults(keys []string, failures []types.Error) []DeleteResult {
	failed := make(map[string]types.Error, len(failures))
	for _, f := range failures {
		failed[aws.ToString(f.Key)] = f
	}

	results := make([]DeleteResult, 0, len(keys))
	for _, k := range keys {
		f, ok := failed[k]
		// NoSuchKey при удалении означает что объекта уже нет
		if !ok || aws.ToString(f.Code) == "NoSuchKey" {
			results = append(results, DeleteResult{Key: k, OK: true})
			continue
		}
		results = append(results, DeleteResult{
			Key:     k,
			Code:    aws.ToString(f.Code),
			Message: aws.ToString(f.Message),
		})
	}
	return results
}

// CreateDownloadURL создает подписанную ссылку на скачивание
func (h *Client) CreateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := h.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// UploadObject загружает байты в S3
func (h *Client) UploadObject(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := h.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload data to S3: %w", err)
	}

	return nil
}

// GetObject получает объект из S3
func (h *Client) GetObject(ctx context.Context, key string) (S3Object, error) {
	result, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return &s3Object{
		ReadCloser:    result.Body,
		contentLength: aws.ToInt64(result.ContentLength),
		contentType:   aws.ToString(result.ContentType),
	}, nil
}

// ListPrefix перечисляет все объекты под префиксом
func (h *Client) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	p := s3.NewListObjectsV2Paginator(h.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(h.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return objects, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
		}
		for _, o := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}

	log.Debug().Str("prefix", prefix).Int("count", len(objects)).Msg("listed objects")
	return objects, nil
}

var ErrObjectNotFound = errors.New("object not found")

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
