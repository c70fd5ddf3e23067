// Package blob stores evidence file content. Metadata lives in the evidence
// tables; this layer only moves bytes. Three backends: memory for tests,
// local filesystem for development, S3 for production.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"conforma/internal/platform/config"
)

// Driver identifies a concrete blob storage backend.
type Driver string

const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// Info describes a stored blob.
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is the interface evidence storage backends implement. Put is
// create-only: evidence content is immutable once written.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() Driver
}

// ErrExists is returned by Put when the key is already taken.
var ErrExists = errors.New("blob: key already exists")

// ErrNotFound is returned when no blob exists under the key.
var ErrNotFound = errors.New("blob: not found")

// Open builds a Store from configuration.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Backend) {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3Bucket, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
