package writer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/turbot/tailwriter/internal/clock"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/filesystem"
	"github.com/turbot/tailwriter/internal/partition"
	"github.com/turbot/tailwriter/internal/record"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// Cache is the single owner of all open handles, keyed by partition directory.
//
// There is at most one handle per partition. A handle is removed from the cache before it is committed,
// so the goroutine which removes it is the only one to commit it. Appends racing with a rotation see
// ErrHandleClosed and retry against a new handle.
//
// Lock order is Cache.mutex then Handle.mutex.
type Cache struct {
	fs      filesystem.FileSystem
	factory *encoding.Factory
	names   *NameProvider
	clock   clock.Clock

	maxRecords        int64
	maxFileSize       int64
	maxOpenTime       time.Duration
	idleTimeout       time.Duration
	maxOpenFiles      int
	operationTimeout  time.Duration
	recoverTempFiles  bool
	rotateConcurrency int

	mutex   sync.RWMutex
	handles map[string]*Handle
	// directories already checked for orphaned temporary files
	recovered map[string]struct{}
	closed    bool
	// the first fatal error raised by the background sweeper
	asyncErr error

	observers

	sweeperStop chan struct{}
	sweeperDone chan struct{}
}

type CacheOption func(*Cache) error

func NewCache(fs filesystem.FileSystem, factory *encoding.Factory, names *NameProvider, opts ...CacheOption) (*Cache, error) {
	c := &Cache{
		fs:                fs,
		factory:           factory,
		names:             names,
		clock:             clock.Real{},
		maxOpenTime:       constants.DefaultMaxOpenTime,
		idleTimeout:       constants.DefaultIdleTimeout,
		maxOpenFiles:      constants.DefaultMaxOpenFiles,
		operationTimeout:  constants.DefaultOperationTimeout,
		rotateConcurrency: 8,
		handles:           make(map[string]*Handle),
		recovered:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.maxOpenFiles < 1 {
		return nil, errors.New("max open files must be at least 1")
	}
	return c, nil
}

// WithMaxRecords rotates a handle as soon as it holds n records. 0 means no limit.
func WithMaxRecords(n int64) CacheOption {
	return func(c *Cache) error {
		if n < 0 {
			return errors.New("max records must not be negative")
		}
		c.maxRecords = n
		return nil
	}
}

// WithMaxFileSize rotates a handle once it has written at least n bytes. 0 means no limit.
func WithMaxFileSize(n int64) CacheOption {
	return func(c *Cache) error {
		if n < 0 {
			return errors.New("max file size must not be negative")
		}
		c.maxFileSize = n
		return nil
	}
}

// WithMaxOpenTime rotates handles which have been open for longer than d on the next sweep. 0 means no limit.
func WithMaxOpenTime(d time.Duration) CacheOption {
	return func(c *Cache) error {
		c.maxOpenTime = d
		return nil
	}
}

// WithIdleTimeout rotates handles which have not been written for d on the next sweep. 0 means no limit.
func WithIdleTimeout(d time.Duration) CacheOption {
	return func(c *Cache) error {
		c.idleTimeout = d
		return nil
	}
}

func WithMaxOpenFiles(n int) CacheOption {
	return func(c *Cache) error {
		c.maxOpenFiles = n
		return nil
	}
}

func WithOperationTimeout(d time.Duration) CacheOption {
	return func(c *Cache) error {
		c.operationTimeout = d
		return nil
	}
}

func WithClock(clk clock.Clock) CacheOption {
	return func(c *Cache) error {
		c.clock = clk
		return nil
	}
}

// WithRecoverTempFiles finalizes orphaned temporary files the first time a directory is opened
func WithRecoverTempFiles(enabled bool) CacheOption {
	return func(c *Cache) error {
		c.recoverTempFiles = enabled
		return nil
	}
}

func WithObservers(observers ...Observer) CacheOption {
	return func(c *Cache) error {
		for _, o := range observers {
			c.AddObserver(o)
		}
		return nil
	}
}

func WithRotateConcurrency(n int) CacheOption {
	return func(c *Cache) error {
		if n < 1 {
			return errors.New("rotate concurrency must be at least 1")
		}
		c.rotateConcurrency = n
		return nil
	}
}

// Append writes a record to the handle for key, creating the handle if needed, and rotates the handle
// if it has reached its record or size limit.
//
// A *encoding.RecordError or *WriteError means the record was not written and the caller may divert it.
// A *RotationError is fatal.
func (c *Cache) Append(ctx context.Context, key partition.Key, rec *record.Record) error {
	for {
		h, err := c.GetOrCreate(ctx, key)
		if err != nil {
			return err
		}
		records, bytes, err := h.Append(rec, c.clock.Now())
		if errors.Is(err, ErrHandleClosed) {
			// rotated by a concurrent sweep
			continue
		}
		if err != nil {
			if encoding.IsRecordError(err) {
				return err
			}
			slog.Warn("writer.Cache write failed, rotating handle", "partition", key.Dir, "error", err)
			if rotErr := c.rotate(ctx, h, ReasonWriteError); rotErr != nil {
				return rotErr
			}
			return &WriteError{Partition: key.Dir, Err: err}
		}

		switch {
		case c.maxRecords > 0 && records >= c.maxRecords:
			return c.rotate(ctx, h, ReasonMaxRecords)
		case c.maxFileSize > 0 && bytes >= c.maxFileSize:
			return c.rotate(ctx, h, ReasonMaxFileSize)
		}
		return nil
	}
}

// GetOrCreate returns the open handle for key, opening a new one if there is none.
// If the cache is full the least recently written handle is evicted.
func (c *Cache) GetOrCreate(ctx context.Context, key partition.Key) (*Handle, error) {
	c.mutex.RLock()
	h, ok := c.handles[key.Dir]
	closed := c.closed
	c.mutex.RUnlock()
	if closed {
		return nil, ErrCacheClosed
	}
	if ok {
		return h, nil
	}

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil, ErrCacheClosed
	}
	// double check, another goroutine may have created the handle
	if h, ok := c.handles[key.Dir]; ok {
		c.mutex.Unlock()
		return h, nil
	}

	if c.recoverTempFiles {
		if _, done := c.recovered[key.Dir]; !done {
			if _, err := Recover(ctx, c.fs, key.Dir, c.names); err != nil {
				slog.Warn("writer.Cache failed to recover temporary files", "dir", key.Dir, "error", err)
			}
			c.recovered[key.Dir] = struct{}{}
		}
	}

	var victim *Handle
	if len(c.handles) >= c.maxOpenFiles {
		victim = c.leastRecentlyWrittenLocked()
		delete(c.handles, victim.key.Dir)
	}

	h, err := openHandle(ctx, c.fs, c.factory, c.names, key, c.clock.Now(), c.operationTimeout)
	if err == nil {
		c.handles[key.Dir] = h
	}
	c.mutex.Unlock()

	if victim != nil {
		slog.Debug("writer.Cache evicting handle", "partition", victim.key.Dir, "for", key.Dir)
		if rotErr := c.commit(ctx, victim, ReasonEvicted); rotErr != nil {
			return nil, rotErr
		}
	}
	if err != nil {
		return nil, &WriteError{Partition: key.Dir, Err: err}
	}
	return h, nil
}

func (c *Cache) leastRecentlyWrittenLocked() *Handle {
	var victim *Handle
	var victimLastWrite time.Time
	for _, h := range c.handles {
		lastWrite := h.LastWriteAt()
		if victim == nil || lastWrite.Before(victimLastWrite) {
			victim, victimLastWrite = h, lastWrite
		}
	}
	return victim
}

// Rotate commits the handle for key, if there is one
func (c *Cache) Rotate(ctx context.Context, key partition.Key) error {
	c.mutex.RLock()
	h, ok := c.handles[key.Dir]
	c.mutex.RUnlock()
	if !ok {
		return nil
	}
	return c.rotate(ctx, h, ReasonExplicit)
}

// rotate removes h from the cache and commits it. If h has already been removed, another goroutine
// owns its rotation and this is a no-op.
func (c *Cache) rotate(ctx context.Context, h *Handle, reason RotationReason) error {
	c.mutex.Lock()
	current, ok := c.handles[h.key.Dir]
	if !ok || current != h {
		c.mutex.Unlock()
		return nil
	}
	delete(c.handles, h.key.Dir)
	c.mutex.Unlock()
	return c.commit(ctx, h, reason)
}

func (c *Cache) commit(ctx context.Context, h *Handle, reason RotationReason) error {
	res, err := h.Commit(ctx)
	event := RotationEvent{
		Key:       h.key,
		Reason:    reason,
		Path:      res.Path,
		Records:   res.Records,
		Bytes:     res.Bytes,
		OpenedAt:  h.createdAt,
		RotatedAt: c.clock.Now(),
		Discarded: res.Discarded,
		Err:       err,
	}
	c.NotifyObservers(event)
	if err != nil {
		slog.Error("writer.Cache rotation failed", "partition", h.key.Dir, "path", h.tempPath, "reason", reason, "error", err)
		return NewRotationError(h.key.Dir, h.tempPath, reason, err)
	}
	slog.Debug("writer.Cache rotated handle", "partition", h.key.Dir, "reason", reason, "records", res.Records, "discarded", res.Discarded)
	return nil
}

// Sweep rotates every handle which has been idle for the idle timeout, or open for the max open time.
// Sweeping twice with the same time rotates nothing the second time.
func (c *Cache) Sweep(ctx context.Context, now time.Time) error {
	type due struct {
		h      *Handle
		reason RotationReason
	}
	var expired []due

	c.mutex.Lock()
	for dir, h := range c.handles {
		switch {
		case c.maxOpenTime > 0 && now.Sub(h.createdAt) >= c.maxOpenTime:
			expired = append(expired, due{h, ReasonMaxOpenTime})
		case c.idleTimeout > 0 && now.Sub(h.LastWriteAt()) >= c.idleTimeout:
			expired = append(expired, due{h, ReasonIdle})
		default:
			continue
		}
		delete(c.handles, dir)
	}
	c.mutex.Unlock()

	var errs []error
	for _, d := range expired {
		if err := c.commit(ctx, d.h, d.reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RotateAll commits every open handle concurrently, including empty ones
func (c *Cache) RotateAll(ctx context.Context, reason RotationReason) error {
	c.mutex.Lock()
	handles := maps.Values(c.handles)
	c.handles = make(map[string]*Handle)
	c.mutex.Unlock()

	var errs []error
	var errsMutex sync.Mutex
	g := errgroup.Group{}
	g.SetLimit(c.rotateConcurrency)
	for _, h := range handles {
		g.Go(func() error {
			if err := c.commit(ctx, h, reason); err != nil {
				errsMutex.Lock()
				errs = append(errs, err)
				errsMutex.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close stops the background sweeper and rotates every handle. Further appends fail with
// ErrCacheClosed. Close is safe to call more than once.
func (c *Cache) Close(ctx context.Context) error {
	c.StopSweeper()
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()
	return c.RotateAll(ctx, ReasonShutdown)
}

// Len returns the number of open handles
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.handles)
}

// Partitions returns the directories of all open handles, sorted
func (c *Cache) Partitions() []string {
	c.mutex.RLock()
	dirs := maps.Keys(c.handles)
	c.mutex.RUnlock()
	slices.Sort(dirs)
	return dirs
}

// Get returns the open handle for a partition directory
func (c *Cache) Get(dir string) (*Handle, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	h, ok := c.handles[dir]
	return h, ok
}

// Err returns the first fatal error raised by the background sweeper
func (c *Cache) Err() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.asyncErr
}

func (c *Cache) setAsyncErr(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.asyncErr == nil {
		c.asyncErr = err
	}
}
