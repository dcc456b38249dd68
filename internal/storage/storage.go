// Package storage defines the interface for object storage operations.
// Swap implementations by changing STORAGE_DRIVER; both the MinIO and the AWS
// SDK implementations work with any S3-compatible provider.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Storage is the interface for uploading and deleting objects.
//
// Implementations make exactly one attempt per call. Retry policy belongs to
// the caller.
type Storage interface {
	// Upload streams data to the store under the given key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Delete removes an object identified by key.
	Delete(ctx context.Context, key string) error
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
}

// Bucket is a Storage that can provision its own bucket at startup.
type Bucket interface {
	Storage
	EnsureBucket(ctx context.Context) error
}

// New returns the Storage implementation named by driver ("minio" or "s3").
func New(ctx context.Context, driver string, opts Options, log *logrus.Logger) (Bucket, error) {
	switch driver {
	case "minio":
		s, err := NewMinioStorage(opts, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := NewS3Storage(ctx, opts, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// KeyFromURL recovers the object key from a URL built by PublicURL with the
// same base. It reports false for URLs outside the base.
func KeyFromURL(publicBase, url string) (string, bool) {
	prefix := strings.TrimRight(publicBase, "/") + "/"
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
