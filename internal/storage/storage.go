// Package storage keeps uploaded resource files in a local directory or a
// MinIO/S3 bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("object not found")
	// ErrPresignUnsupported is returned by backends that cannot hand out
	// direct download URLs; callers stream the object with Get instead.
	ErrPresignUnsupported = errors.New("presigned urls not supported")
	ErrInvalidKey         = errors.New("invalid object key")
)

// ObjectStore provides access to object storage.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a unique key under prefix that keeps the file extension.
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(prefix, uuid.NewString()+ext)
}
