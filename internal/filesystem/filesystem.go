package filesystem

import (
	"context"
	"io"
	"io/fs"
)

// File is an open, writable file
type File interface {
	io.Writer
	Name() string
	Sync() error
	Close() error
}

// FileSystem is the store artifacts are written to. Implementations must honour context deadlines on
// every call which may block on the underlying store.
type FileSystem interface {
	// Create creates (or truncates) the named file for writing. Parent directories must exist.
	Create(ctx context.Context, name string) (File, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Rename atomically moves oldname to newname
	Rename(ctx context.Context, oldname, newname string) error
	Remove(ctx context.Context, name string) error
	MkdirAll(ctx context.Context, dir string) error
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	// List returns the entries of dir, or an empty list if dir does not exist
	List(ctx context.Context, dir string) ([]fs.FileInfo, error)
}
