package writer

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/tailwriter/internal/clock"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/filesystem"
	"github.com/turbot/tailwriter/internal/record"
)

func TestCache_RotatesOnMaxRecordsWithinBatch(t *testing.T) {
	fs := filesystem.NewMemFS()
	c, log := newTestCache(t, fs, clock.NewManual(testStart), WithMaxRecords(2))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Append(backgroundCtx, key("/data/a"), rec(i)))
	}
	// two full handles were rotated as they filled up
	events := log.committed()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, ReasonMaxRecords, e.Reason)
		assert.EqualValues(t, 2, e.Records)
	}
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Close(backgroundCtx))
	events = log.committed()
	require.Len(t, events, 3)
	assert.Equal(t, ReasonShutdown, events[2].Reason)
	assert.EqualValues(t, 1, events[2].Records)

	var total int
	for _, e := range events {
		total += len(readArtifact(t, fs, e.Path))
	}
	assert.Equal(t, 5, total)
	assert.Len(t, listNames(t, fs, "/data/a"), 3)
}

func TestCache_RotatesOnMaxFileSize(t *testing.T) {
	fs := filesystem.NewMemFS()
	c, log := newTestCache(t, fs, clock.NewManual(testStart), WithMaxFileSize(20))

	// each record is 8 bytes: {"n":1}\n
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Append(backgroundCtx, key("/data/a"), rec(i)))
	}
	events := log.committed()
	require.Len(t, events, 1)
	assert.Equal(t, ReasonMaxFileSize, events[0].Reason)
	assert.EqualValues(t, 3, events[0].Records)
}

func TestCache_RotatesOnMaxFileSizeForBlockFormats(t *testing.T) {
	const schema = `{"type":"record","name":"event","fields":[{"name":"n","type":"long"},{"name":"msg","type":"string"}]}`
	tests := []struct {
		name string
		opts encoding.Options
	}{
		{name: "json", opts: encoding.Options{Format: encoding.FormatJSON}},
		{name: "avro", opts: encoding.Options{Format: encoding.FormatAvro, Compression: encoding.CompressionDeflate, AvroSchema: schema}},
		{name: "sequence record", opts: encoding.Options{Format: encoding.FormatSequence}},
		{name: "sequence block", opts: encoding.Options{Format: encoding.FormatSequence, Compression: encoding.CompressionGzip, SequenceCompressionType: encoding.SequenceBlock}},
		{name: "parquet", opts: encoding.Options{Format: encoding.FormatParquet}},
	}
	const total = 30
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			// blocks larger than the whole run, so only buffered sizes can trigger rotation
			opts.SyncInterval = 1000
			opts.ScratchDir = t.TempDir()
			factory, err := encoding.NewFactory(opts)
			require.NoError(t, err)

			fs := filesystem.NewMemFS()
			log := &eventLog{}
			c, err := NewCache(fs, factory, NewNameProvider(testPrefix, factory.Extension()),
				WithClock(clock.NewManual(testStart)), WithObservers(log), WithMaxFileSize(500))
			require.NoError(t, err)

			for i := 0; i < total; i++ {
				r := record.New(
					record.Field{Name: "n", Value: int64(i)},
					record.Field{Name: "msg", Value: fmt.Sprintf("%02d-abcdefghijklmnopqrstuvwxyz0123456789", i)},
				)
				require.NoError(t, c.Append(backgroundCtx, key("/data/a"), r))
			}

			bySize := 0
			for _, e := range log.committed() {
				if e.Reason == ReasonMaxFileSize {
					bySize++
					assert.Less(t, e.Records, int64(total))
				}
			}
			assert.Positive(t, bySize)

			require.NoError(t, c.Close(backgroundCtx))
			var written int64
			for _, e := range log.committed() {
				written += e.Records
			}
			assert.EqualValues(t, total, written)
		})
	}
}

func TestCache_Sweep(t *testing.T) {
	fs := filesystem.NewMemFS()
	clk := clock.NewManual(testStart)
	c, log := newTestCache(t, fs, clk, WithIdleTimeout(30*time.Minute), WithMaxOpenTime(time.Hour))

	require.NoError(t, c.Append(backgroundCtx, key("/a"), rec(1)))
	clk.Advance(10 * time.Minute)
	require.NoError(t, c.Append(backgroundCtx, key("/b"), rec(2)))

	// a has been idle for 35 minutes, b for 25
	now := clk.Advance(25 * time.Minute)
	require.NoError(t, c.Sweep(backgroundCtx, now))
	assert.Equal(t, []string{"/b"}, c.Partitions())
	require.Len(t, log.committed(), 1)
	assert.Equal(t, ReasonIdle, log.committed()[0].Reason)
	assert.Equal(t, "/a", log.committed()[0].Key.Dir)

	// sweeping again at the same time does nothing
	require.NoError(t, c.Sweep(backgroundCtx, now))
	assert.Len(t, log.all(), 1)
	assert.Equal(t, 1, c.Len())

	// keep b busy until it reaches its max open time
	for i := 0; i < 6; i++ {
		clk.Advance(10 * time.Minute)
		require.NoError(t, c.Append(backgroundCtx, key("/b"), rec(i)))
	}
	require.NoError(t, c.Sweep(backgroundCtx, clk.Now()))
	assert.Equal(t, 0, c.Len())
	require.Len(t, log.committed(), 2)
	assert.Equal(t, ReasonMaxOpenTime, log.committed()[1].Reason)
	assert.EqualValues(t, 7, log.committed()[1].Records)
}

func TestCache_EvictsLeastRecentlyWritten(t *testing.T) {
	fs := filesystem.NewMemFS()
	clk := clock.NewManual(testStart)
	c, log := newTestCache(t, fs, clk, WithMaxOpenFiles(2))

	require.NoError(t, c.Append(backgroundCtx, key("/a"), rec(1)))
	clk.Advance(time.Second)
	require.NoError(t, c.Append(backgroundCtx, key("/b"), rec(2)))
	clk.Advance(time.Second)
	require.NoError(t, c.Append(backgroundCtx, key("/a"), rec(3)))
	clk.Advance(time.Second)
	require.NoError(t, c.Append(backgroundCtx, key("/c"), rec(4)))

	assert.Equal(t, []string{"/a", "/c"}, c.Partitions())
	require.Len(t, log.committed(), 1)
	assert.Equal(t, "/b", log.committed()[0].Key.Dir)
	assert.Equal(t, ReasonEvicted, log.committed()[0].Reason)
}

func TestCache_CloseDiscardsEmptyHandles(t *testing.T) {
	fs := filesystem.NewMemFS()
	c, log := newTestCache(t, fs, clock.NewManual(testStart))

	_, err := c.GetOrCreate(backgroundCtx, key("/empty"))
	require.NoError(t, err)
	require.NoError(t, c.Append(backgroundCtx, key("/full"), rec(1)))

	require.NoError(t, c.Close(backgroundCtx))
	assert.Empty(t, listNames(t, fs, "/empty"))
	assert.Len(t, listNames(t, fs, "/full"), 1)
	require.Len(t, log.all(), 2)
	assert.Len(t, log.committed(), 1)
}

func TestCache_RotationFailureIsFatal(t *testing.T) {
	fs := &failingFS{FileSystem: filesystem.NewMemFS()}
	c, log := newTestCache(t, fs, clock.NewManual(testStart))

	require.NoError(t, c.Append(backgroundCtx, key("/a"), rec(1)))
	fs.failRename = true

	err := c.Close(backgroundCtx)
	var rotationErr *RotationError
	require.True(t, errors.As(err, &rotationErr), "expected a RotationError, got %v", err)
	assert.Equal(t, "/a", rotationErr.Partition)
	assert.Equal(t, ReasonShutdown, rotationErr.Reason)
	assert.ErrorIs(t, err, errInjected)
	require.Len(t, log.all(), 1)
	assert.Error(t, log.all()[0].Err)
}

func TestCache_WriteFailureRotatesHandle(t *testing.T) {
	fs := &failingFS{FileSystem: filesystem.NewMemFS(), failWrite: true}
	c, log := newTestCache(t, fs, clock.NewManual(testStart))

	err := c.Append(backgroundCtx, key("/a"), rec(1))
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr), "expected a WriteError, got %v", err)
	assert.Equal(t, 0, c.Len())
	require.Len(t, log.all(), 1)
	assert.Equal(t, ReasonWriteError, log.all()[0].Reason)
}

func TestCache_EncodeFailureKeepsHandle(t *testing.T) {
	fs := filesystem.NewMemFS()
	c, _ := newTestCache(t, fs, clock.NewManual(testStart))

	bad := record.New(record.Field{Name: "ch", Value: make(chan int)})
	err := c.Append(backgroundCtx, key("/a"), bad)
	assert.True(t, encoding.IsRecordError(err), "expected a RecordError, got %v", err)
	require.NoError(t, c.Append(backgroundCtx, key("/a"), rec(1)))
	assert.Equal(t, 1, c.Len())
}

func TestCache_ClosedRejectsAppends(t *testing.T) {
	c, _ := newTestCache(t, filesystem.NewMemFS(), clock.NewManual(testStart))
	require.NoError(t, c.Close(backgroundCtx))
	assert.ErrorIs(t, c.Append(backgroundCtx, key("/a"), rec(1)), ErrCacheClosed)
	// closing twice is harmless
	assert.NoError(t, c.Close(backgroundCtx))
}

func TestCache_ConcurrentAppendsAndSweeps(t *testing.T) {
	fs := filesystem.NewMemFS()
	clk := clock.NewManual(testStart)
	c, log := newTestCache(t, fs, clk, WithIdleTimeout(time.Minute), WithMaxRecords(7), WithMaxOpenFiles(3))

	const writers, perWriter = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				dir := fmt.Sprintf("/p%d", (w+i)%5)
				assert.NoError(t, c.Append(backgroundCtx, key(dir), rec(i)))
			}
		}(w)
	}
	stop := make(chan struct{})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		for {
			select {
			case <-stop:
				return
			default:
				assert.NoError(t, c.Sweep(backgroundCtx, clk.Now().Add(time.Hour)))
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-sweepDone
	require.NoError(t, c.Close(backgroundCtx))

	var total int64
	for _, e := range log.committed() {
		total += e.Records
		assert.LessOrEqual(t, e.Records, int64(7))
	}
	assert.EqualValues(t, writers*perWriter, total)
}

func TestCache_BackgroundSweeper(t *testing.T) {
	fs := filesystem.NewMemFS()
	clk := clock.NewManual(testStart)
	c, log := newTestCache(t, fs, clk, WithIdleTimeout(time.Minute))

	require.NoError(t, c.Append(backgroundCtx, key("/a"), rec(1)))
	clk.Advance(2 * time.Minute)
	c.StartSweeper(backgroundCtx, time.Millisecond)

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, time.Millisecond)
	c.StopSweeper()
	require.Len(t, log.committed(), 1)
	assert.Equal(t, ReasonIdle, log.committed()[0].Reason)
	assert.NoError(t, c.Err())
}
