package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// AferoFS is a FileSystem backed by an afero.Fs: afero.NewOsFs for local or mounted stores,
// afero.NewMemMapFs for tests.
type AferoFS struct {
	fs afero.Fs
}

func NewAferoFS(fs afero.Fs) *AferoFS {
	return &AferoFS{fs: fs}
}

// NewOsFS returns a FileSystem on the local disk
func NewOsFS() *AferoFS {
	return NewAferoFS(afero.NewOsFs())
}

// NewMemFS returns an in memory FileSystem
func NewMemFS() *AferoFS {
	return NewAferoFS(afero.NewMemMapFs())
}

// Afero returns the underlying afero.Fs
func (a *AferoFS) Afero() afero.Fs {
	return a.fs
}

func (a *AferoFS) Create(ctx context.Context, name string) (File, error) {
	return run(ctx, func() (File, error) {
		f, err := a.fs.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

func (a *AferoFS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return run(ctx, func() (io.ReadCloser, error) {
		f, err := a.fs.Open(name)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

func (a *AferoFS) Rename(ctx context.Context, oldname, newname string) error {
	_, err := run(ctx, func() (struct{}, error) {
		return struct{}{}, a.fs.Rename(oldname, newname)
	})
	return err
}

func (a *AferoFS) Remove(ctx context.Context, name string) error {
	_, err := run(ctx, func() (struct{}, error) {
		return struct{}{}, a.fs.Remove(name)
	})
	return err
}

func (a *AferoFS) MkdirAll(ctx context.Context, dir string) error {
	_, err := run(ctx, func() (struct{}, error) {
		return struct{}{}, a.fs.MkdirAll(dir, 0o755)
	})
	return err
}

func (a *AferoFS) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	return run(ctx, func() (fs.FileInfo, error) {
		return a.fs.Stat(name)
	})
}

func (a *AferoFS) List(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	return run(ctx, func() ([]fs.FileInfo, error) {
		entries, err := afero.ReadDir(a.fs, dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return entries, err
	})
}

// run executes fn, returning early with the context error if ctx is done first.
// fn is left to complete in the background; results arriving after the deadline are discarded, and any
// file opened late is closed.
func run[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		go func() {
			r := <-ch
			if c, ok := any(r.val).(io.Closer); ok && r.err == nil {
				_ = c.Close()
			}
		}()
		return zero, ctx.Err()
	}
}
