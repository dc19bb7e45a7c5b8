package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/filesystem"
	"github.com/turbot/tailwriter/internal/partition"
	"github.com/turbot/tailwriter/internal/record"
)

type State int

const (
	StateOpen State = iota
	StateRotating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateRotating:
		return "ROTATING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CommitResult describes the outcome of committing a handle
type CommitResult struct {
	Path    string
	Records int64
	Bytes   int64
	// Discarded is set when the handle had no records: its temporary file is removed and no artifact
	// is produced
	Discarded bool
}

// Handle is a single open artifact for one partition.
// Records are encoded into a temporary file which is renamed to its final name on Commit.
type Handle struct {
	key       partition.Key
	fs        filesystem.FileSystem
	tempPath  string
	finalPath string
	timeout   time.Duration
	createdAt time.Time

	mutex       sync.Mutex
	file        filesystem.File
	counter     *countingWriter
	enc         encoding.Encoder
	buffered    encoding.Buffering
	state       State
	records     int64
	lastWriteAt time.Time

	// closed when commit completes
	done   chan struct{}
	result CommitResult
	err    error
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// openHandle creates the temporary file for a new handle in the key directory
func openHandle(ctx context.Context, fs filesystem.FileSystem, factory *encoding.Factory, names *NameProvider, key partition.Key, now time.Time, timeout time.Duration) (*Handle, error) {
	tempName, finalName := names.Next()
	h := &Handle{
		key:         key,
		fs:          fs,
		tempPath:    path.Join(key.Dir, tempName),
		finalPath:   path.Join(key.Dir, finalName),
		timeout:     timeout,
		createdAt:   now,
		lastWriteAt: now,
		done:        make(chan struct{}),
	}

	opCtx, cancel := h.opContext(ctx)
	defer cancel()
	if err := fs.MkdirAll(opCtx, key.Dir); err != nil {
		return nil, fmt.Errorf("failed to create partition directory %s: %w", key.Dir, err)
	}
	file, err := fs.Create(opCtx, h.tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", h.tempPath, err)
	}
	h.file = file
	h.counter = &countingWriter{w: file}
	enc, err := factory.NewEncoder(h.counter)
	if err != nil {
		_ = file.Close()
		_ = fs.Remove(opCtx, h.tempPath)
		return nil, fmt.Errorf("failed to create encoder for %s: %w", h.tempPath, err)
	}
	h.enc = enc
	h.buffered, _ = enc.(encoding.Buffering)
	slog.Debug("writer.Handle opened", "partition", key.Dir, "path", h.tempPath)
	return h, nil
}

func (h *Handle) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}

// Append encodes a record into the handle, returning the record and byte counts after the write.
// The byte count includes data the encoder is still holding in a block.
// It returns ErrHandleClosed once the handle has started rotating.
func (h *Handle) Append(rec *record.Record, now time.Time) (records, bytes int64, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.state != StateOpen {
		return h.records, h.size(), ErrHandleClosed
	}
	if err := h.enc.Encode(rec); err != nil {
		return h.records, h.size(), err
	}
	h.records++
	h.lastWriteAt = now
	return h.records, h.size(), nil
}

func (h *Handle) size() int64 {
	if h.buffered != nil {
		return h.counter.n + h.buffered.Buffered()
	}
	return h.counter.n
}

// Commit finalizes the handle: the encoder is flushed and closed, the file is closed and renamed from
// its temporary name to its final name. A handle with no records is removed instead.
// The handle is CLOSED once Commit returns, whether or not it succeeded. Calling Commit again has no
// effect and returns the result of the first call.
func (h *Handle) Commit(ctx context.Context) (CommitResult, error) {
	h.mutex.Lock()
	if h.state != StateOpen {
		h.mutex.Unlock()
		select {
		case <-h.done:
			return h.result, h.err
		case <-ctx.Done():
			return CommitResult{}, ctx.Err()
		}
	}
	h.state = StateRotating
	h.mutex.Unlock()

	result, err := h.finish(ctx)

	h.mutex.Lock()
	h.result, h.err = result, err
	h.state = StateClosed
	h.mutex.Unlock()
	close(h.done)
	return result, err
}

func (h *Handle) finish(ctx context.Context) (CommitResult, error) {
	// no appends can happen once rotating
	records := h.records

	opCtx, cancel := h.opContext(ctx)
	defer cancel()

	encErr := h.enc.Close()
	if records == 0 {
		closeErr := h.file.Close()
		if err := h.fs.Remove(opCtx, h.tempPath); err != nil {
			// an empty temporary file is removed by recovery
			slog.Warn("writer.Handle failed to remove empty temporary file", "path", h.tempPath, "error", errors.Join(err, closeErr))
		}
		return CommitResult{Discarded: true}, nil
	}
	if encErr != nil {
		_ = h.file.Close()
		return CommitResult{}, fmt.Errorf("failed to flush %s: %w", h.tempPath, encErr)
	}
	if err := h.file.Sync(); err != nil {
		_ = h.file.Close()
		return CommitResult{}, fmt.Errorf("failed to sync %s: %w", h.tempPath, err)
	}
	if err := h.file.Close(); err != nil {
		return CommitResult{}, fmt.Errorf("failed to close %s: %w", h.tempPath, err)
	}
	if err := h.fs.Rename(opCtx, h.tempPath, h.finalPath); err != nil {
		return CommitResult{}, fmt.Errorf("failed to rename %s to %s: %w", h.tempPath, h.finalPath, err)
	}
	slog.Debug("writer.Handle committed", "partition", h.key.Dir, "path", h.finalPath, "records", records, "bytes", h.counter.n)
	return CommitResult{
		Path:    h.finalPath,
		Records: records,
		Bytes:   h.counter.n,
	}, nil
}

func (h *Handle) Key() partition.Key {
	return h.key
}

func (h *Handle) TempPath() string {
	return h.tempPath
}

func (h *Handle) FinalPath() string {
	return h.finalPath
}

func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

func (h *Handle) State() State {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state
}

// Failed reports whether the handle was committed unsuccessfully
func (h *Handle) Failed() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state == StateClosed && h.err != nil
}

func (h *Handle) Records() int64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.records
}

func (h *Handle) LastWriteAt() time.Time {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.lastWriteAt
}
