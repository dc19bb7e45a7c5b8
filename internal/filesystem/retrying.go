package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retrying wraps a FileSystem, retrying calls which fail with a transient error using exponential
// backoff. Retries are bounded: once exhausted the last error is returned.
type Retrying struct {
	FileSystem
	retries uint64
	base    time.Duration
}

func NewRetrying(inner FileSystem, retries int, base time.Duration) *Retrying {
	if retries < 0 {
		retries = 0
	}
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	return &Retrying{
		FileSystem: inner,
		retries:    uint64(retries),
		base:       base,
	}
}

func (r *Retrying) backoff() retry.Backoff {
	return retry.WithMaxRetries(r.retries, retry.NewExponential(r.base))
}

func (r *Retrying) do(ctx context.Context, op, name string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		slog.Debug("filesystem: transient failure, retrying", "op", op, "name", name, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

func (r *Retrying) Create(ctx context.Context, name string) (File, error) {
	var f File
	err := r.do(ctx, "create", name, func(ctx context.Context) error {
		var err error
		f, err = r.FileSystem.Create(ctx, name)
		return err
	})
	return f, err
}

func (r *Retrying) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.do(ctx, "open", name, func(ctx context.Context) error {
		var err error
		rc, err = r.FileSystem.Open(ctx, name)
		return err
	})
	return rc, err
}

// Rename retries transient failures. If an earlier attempt failed after the rename had in fact been
// applied, the source is gone and the target exists: this is treated as success.
func (r *Retrying) Rename(ctx context.Context, oldname, newname string) error {
	attempt := 0
	return r.do(ctx, "rename", oldname, func(ctx context.Context) error {
		attempt++
		err := r.FileSystem.Rename(ctx, oldname, newname)
		if err != nil && attempt > 1 && errors.Is(err, fs.ErrNotExist) {
			if _, statErr := r.FileSystem.Stat(ctx, newname); statErr == nil {
				return nil
			}
		}
		return err
	})
}

func (r *Retrying) Remove(ctx context.Context, name string) error {
	return r.do(ctx, "remove", name, func(ctx context.Context) error {
		return r.FileSystem.Remove(ctx, name)
	})
}

func (r *Retrying) MkdirAll(ctx context.Context, dir string) error {
	return r.do(ctx, "mkdir", dir, func(ctx context.Context) error {
		return r.FileSystem.MkdirAll(ctx, dir)
	})
}

func (r *Retrying) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	var fi fs.FileInfo
	err := r.do(ctx, "stat", name, func(ctx context.Context) error {
		var err error
		fi, err = r.FileSystem.Stat(ctx, name)
		return err
	})
	return fi, err
}

func (r *Retrying) List(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	var entries []fs.FileInfo
	err := r.do(ctx, "list", dir, func(ctx context.Context) error {
		var err error
		entries, err = r.FileSystem.List(ctx, dir)
		return err
	})
	return entries, err
}

// IsTransient reports whether err may succeed if retried.
// Missing or existing files, permission failures and context cancellation are permanent.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrInvalid),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
