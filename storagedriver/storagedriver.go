// Package storagedriver defines the byte-level storage backend underneath
// the content-addressed object store: a minimal filesystem-like key/value
// interface that concrete backends (filesystem, in-memory, and eventually
// cloud blob stores) implement.
package storagedriver

import (
	"context"
	"fmt"
	"io"
)

// StorageDriver defines the methods a storage backend must implement to
// back the object store. All methods may suspend on I/O and must honor
// context cancellation.
type StorageDriver interface {
	// Name identifies the driver, e.g. "filesystem" or "inmemory".
	Name() string

	// GetContent retrieves the content stored at path in full.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent stores content at path, replacing any existing content.
	// Implementations write to a temp location and rename into place so a
	// cancelled or crashed write never leaves a partial file visible.
	PutContent(ctx context.Context, path string, content []byte) error

	// Reader returns a stream of the content at path starting at offset.
	Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Writer returns a handle to append to (or start, if append is false)
	// the content at path. Used for staged/resumable uploads.
	Writer(ctx context.Context, path string, append bool) (FileWriter, error)

	// Stat returns metadata about path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the direct children of path.
	List(ctx context.Context, path string) ([]string, error)

	// Move relocates content from sourcePath to destPath.
	Move(ctx context.Context, sourcePath, destPath string) error

	// Delete removes path and everything beneath it.
	Delete(ctx context.Context, path string) error
}

// FileWriter is a handle for an in-progress write, supporting resumable
// uploads: Size reports bytes written so far, Commit finalizes the
// write, and Cancel discards it.
type FileWriter interface {
	io.WriteCloser
	Size() int64
	Commit() error
	Cancel() error
}

// FileInfo describes a stored object.
type FileInfo struct {
	Path    string
	Size    int64
	IsDir   bool
	ModTime int64 // unix seconds; never used in any hashed encoding
}

// PathNotFoundError is returned when operating on a nonexistent path.
type PathNotFoundError struct {
	Path string
}

func (e PathNotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

// InvalidOffsetError is returned when Reader is asked to start at an offset
// past the end of the content stored at path.
type InvalidOffsetError struct {
	Path   string
	Offset int64
}

func (e InvalidOffsetError) Error() string {
	return fmt.Sprintf("invalid offset %d for path %s", e.Offset, e.Path)
}
