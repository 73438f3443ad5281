package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const MaxSize = 10 << 20

var (
	ErrTooLarge        = errors.New("file exceeds the 10 MB limit")
	ErrUnsupportedType = errors.New("only PDF and image files are allowed")
)

var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
}

// Check validates the declared content type and size of an upload.
func Check(contentType string, size int64) error {
	if _, ok := allowedTypes[normalizeType(contentType)]; !ok {
		return ErrUnsupportedType
	}
	if size <= 0 || size > MaxSize {
		return ErrTooLarge
	}
	return nil
}

func normalizeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// ObjectName returns a fresh uuid name that keeps the file's extension, or
// the canonical extension of the content type when the file has none.
func ObjectName(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = allowedTypes[normalizeType(contentType)]
	}
	return uuid.NewString() + ext
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type MinioUploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinio(cfg Config) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}
	return &MinioUploader{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (u *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Put stores r under a new object name and returns its public URL.
func (u *MinioUploader) Put(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if err := Check(contentType, size); err != nil {
		return "", err
	}
	objectName := ObjectName(filename, contentType)
	_, err := u.client.PutObject(ctx, u.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: normalizeType(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	return u.publicURL + "/" + u.bucket + "/" + objectName, nil
}
