package storage

import (
	"context"
	"io"
)

type Object struct {
	Name string
	Size int64
}

// ObjectStore holds model artifacts. Keys under a prefix form a directory.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	DeleteObjects(ctx context.Context, bucket, prefix string) error

	DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error

	UploadDir(ctx context.Context, bucket, prefix, src string) error
}
