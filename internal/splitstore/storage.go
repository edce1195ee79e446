// Package splitstore implements the Split Store: the object-storage
// front door that uploads sealed splits, serves reads through a
// bounded local cache, and enforces the global upload concurrency
// budget. The package depends only on the Storage
// ABI: put/get_slice/copy_to_file/delete/exists/
// list_prefix; any concrete Backend (s3backend, fsbackend) is
// interchangeable, handler-behind-an-interface.
package splitstore

import (
	"context"
	"io"
)

// ByteRange is a half-open [Start, End) byte range for get_slice reads.
type ByteRange struct {
	Start int64
	End int64
}

// Backend is the Storage ABI of: s3backend
// (aws-sdk-go-v2) and fsbackend (local filesystem).
type Backend interface {
	Put(ctx context.Context, path string, payload io.Reader) error
	GetSlice(ctx context.Context, path string, r ByteRange) ([]byte, error)
	CopyToFile(ctx context.Context, path, localPath string) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
}
