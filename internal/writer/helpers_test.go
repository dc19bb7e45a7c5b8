package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/turbot/tailwriter/internal/clock"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/filesystem"
	"github.com/turbot/tailwriter/internal/partition"
	"github.com/turbot/tailwriter/internal/record"
)

var (
	testStart     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	errInjected   = errors.New("injected failure")
	jsonFactory   = mustFactory(encoding.Options{Format: encoding.FormatJSON})
	testPrefix    = "data"
	testNames     = NewNameProvider(testPrefix, ".json")
	backgroundCtx = context.Background()
)

func mustFactory(opts encoding.Options) *encoding.Factory {
	f, err := encoding.NewFactory(opts)
	if err != nil {
		panic(err)
	}
	return f
}

func key(dir string) partition.Key {
	return partition.Key{Dir: dir}
}

func rec(i int) *record.Record {
	return record.New(record.Field{Name: "n", Value: i})
}

// failingFS injects failures into renames and writes
type failingFS struct {
	filesystem.FileSystem
	failRename bool
	failWrite  bool
}

func (f *failingFS) Rename(ctx context.Context, oldname, newname string) error {
	if f.failRename {
		return errInjected
	}
	return f.FileSystem.Rename(ctx, oldname, newname)
}

func (f *failingFS) Create(ctx context.Context, name string) (filesystem.File, error) {
	file, err := f.FileSystem.Create(ctx, name)
	if err != nil || !f.failWrite {
		return file, err
	}
	return failingFile{file}, nil
}

type failingFile struct {
	filesystem.File
}

func (failingFile) Write([]byte) (int, error) {
	return 0, errInjected
}

// eventLog records rotation events
type eventLog struct {
	mutex  sync.Mutex
	events []RotationEvent
}

func (l *eventLog) OnRotation(event RotationEvent) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []RotationEvent {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]RotationEvent(nil), l.events...)
}

func (l *eventLog) committed() []RotationEvent {
	var res []RotationEvent
	for _, e := range l.all() {
		if !e.Discarded && e.Err == nil {
			res = append(res, e)
		}
	}
	return res
}

func newTestCache(t *testing.T, fs filesystem.FileSystem, clk clock.Clock, opts ...CacheOption) (*Cache, *eventLog) {
	t.Helper()
	log := &eventLog{}
	opts = append([]CacheOption{WithClock(clk), WithObservers(log)}, opts...)
	c, err := NewCache(fs, jsonFactory, testNames, opts...)
	require.NoError(t, err)
	return c, log
}

// listNames returns the names of the files in dir
func listNames(t *testing.T, fs filesystem.FileSystem, dir string) []string {
	t.Helper()
	entries, err := fs.List(backgroundCtx, dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// readArtifact decodes every record of a JSON artifact
func readArtifact(t *testing.T, fs filesystem.FileSystem, p string) []*record.Record {
	t.Helper()
	rc, err := fs.Open(backgroundCtx, p)
	require.NoError(t, err)
	dec, err := jsonFactory.NewDecoder(rc)
	require.NoError(t, err)
	defer dec.Close()
	var res []*record.Record
	for {
		r, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return res
		}
		require.NoError(t, err)
		res = append(res, r)
	}
}

func tempFile(t *testing.T, fs filesystem.FileSystem, dir, name, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(backgroundCtx, dir))
	f, err := fs.Create(backgroundCtx, path.Join(dir, name))
	require.NoError(t, err)
	_, err = fmt.Fprint(f, content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
