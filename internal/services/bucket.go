package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

type BucketService interface {
	UploadFile(ctx context.Context, key string, contentType string, r io.Reader) error
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	GetPublicURL(key string) string
	Close() error
}

type bucketService struct {
	log        *logger.Logger
	client     *storage.Client
	bucketName string
}

// NewBucketService opens a GCS client. An empty credentialsFile falls back to
// application default credentials.
func NewBucketService(ctx context.Context, log *logger.Logger, bucketName, credentialsFile string) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")
	if bucketName == "" {
		return nil, ErrStorageUnavailable
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &bucketService{
		log:        serviceLog,
		client:     client,
		bucketName: bucketName,
	}, nil
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, contentType string, r io.Reader) error {
	w := bs.client.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		bs.log.Warn("Failed to write object", "key", key, "error", err)
		return fmt.Errorf("failed writing object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		bs.log.Warn("Failed to finalize object", "key", key, "error", err)
		return fmt.Errorf("failed closing object writer %q: %w", key, err)
	}
	bs.log.Debug("Uploaded object", "key", key)
	return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	rc, err := bs.client.Bucket(bs.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: object %q does not exist", ErrValidation, key)
		}
		return nil, fmt.Errorf("failed opening object %q: %w", key, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (bs *bucketService) GetPublicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}

func (bs *bucketService) Close() error {
	return bs.client.Close()
}
