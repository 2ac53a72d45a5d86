// Package storage puts image objects into an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned for missing objects.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the object storage the server and worker use.
type Store interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType, cacheControl string) error
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PublicURL(key string) string
}

// Object is a stored payload with its metadata.
type Object struct {
	Data         []byte
	ContentType  string
	CacheControl string
	LastModified time.Time
}

// Reader is implemented by stores that can serve objects themselves.
type Reader interface {
	GetObject(ctx context.Context, key string) (*Object, error)
}
