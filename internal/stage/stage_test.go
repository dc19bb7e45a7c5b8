package stage

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/tailwriter/internal/clock"
	"github.com/turbot/tailwriter/internal/config"
	"github.com/turbot/tailwriter/internal/errorsink"
	"github.com/turbot/tailwriter/internal/filesystem"
	"github.com/turbot/tailwriter/internal/record"
	"github.com/turbot/tailwriter/internal/writer"
)

var (
	stageTime   = time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	errInjected = errors.New("injected failure")
	ctx         = context.Background()
)

type rotations struct {
	events []writer.RotationEvent
}

func (r *rotations) OnRotation(event writer.RotationEvent) {
	r.events = append(r.events, event)
}

type harness struct {
	stage     *Stage
	clock     *clock.Manual
	fs        *filesystem.AferoFS
	sink      *errorsink.MemorySink
	rotations *rotations
}

func newHarness(t *testing.T, c *config.StageConfig, opts ...StageOption) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.NewManual(stageTime),
		fs:        filesystem.NewMemFS(),
		sink:      errorsink.NewMemorySink(),
		rotations: &rotations{},
	}
	opts = append([]StageOption{
		WithFileSystem(h.fs),
		WithClock(h.clock),
		WithErrorSink(h.sink),
		WithRotationObserver(h.rotations),
	}, opts...)
	h.stage = New(c, opts...)
	require.NoError(t, h.stage.Init(ctx))
	return h
}

func dailyConfig() *config.StageConfig {
	c := config.Default("/data/${YYYY}/${MM}/${DD}/")
	c.TimeDriver = "field:ts"
	c.UniquePrefix = "events"
	return c
}

func event(ts string, msg string) *record.Record {
	return record.New(record.Field{Name: "ts", Value: ts}, record.Field{Name: "msg", Value: msg})
}

// files returns every file below root
func (h *harness) files(t *testing.T) []string {
	t.Helper()
	var res []string
	err := afero.Walk(h.fs.Afero(), "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			res = append(res, p)
		}
		return nil
	})
	require.NoError(t, err)
	return res
}

func (h *harness) read(t *testing.T, p string) []*record.Record {
	t.Helper()
	rc, err := h.fs.Open(ctx, p)
	require.NoError(t, err)
	dec, err := h.stage.settings.Factory.NewDecoder(rc)
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

func TestStage_SameDayRecordsMakeOneArtifact(t *testing.T) {
	h := newHarness(t, dailyConfig())

	report, err := h.stage.Write(ctx, []*record.Record{
		event("2024-05-03T01:00:00Z", "a"),
		event("2024-05-03T02:00:00Z", "b"),
		event("2024-05-03T03:00:00Z", "c"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)
	require.NoError(t, h.stage.Destroy(ctx))

	files := h.files(t)
	require.Len(t, files, 1)
	assert.Equal(t, "/data/2024/05/03", path.Dir(files[0]))
	assert.True(t, strings.HasPrefix(path.Base(files[0]), "events_"), files[0])
	assert.True(t, strings.HasSuffix(files[0], ".json"), files[0])

	records := h.read(t, files[0])
	require.Len(t, records, 3)
	for i, want := range []string{"a", "b", "c"} {
		msg, _ := records[i].Get("msg")
		assert.Equal(t, want, msg)
	}

	status := h.stage.Status()
	assert.EqualValues(t, 3, status.Written)
	assert.EqualValues(t, 1, status.Artifacts)
	assert.Equal(t, files[0], status.LatestArtifact)
	assert.Contains(t, status.String(), "Records written: 3.")
}

func TestStage_BinaryFormats(t *testing.T) {
	const schema = `{
		"type": "record",
		"name": "event",
		"fields": [
			{"name": "name", "type": "string"},
			{"name": "count", "type": "long"},
			{"name": "ratio", "type": "double"},
			{"name": "ok", "type": "boolean"}
		]
	}`
	tests := []struct {
		name         string
		format       string
		compression  string
		sequenceType string
		wantExt      string
		wantMagic    string
	}{
		{name: "avro", format: "AVRO", compression: "DEFLATE", wantExt: ".avro", wantMagic: "Obj\x01"},
		{name: "avro uncompressed", format: "AVRO", wantExt: ".avro", wantMagic: "Obj\x01"},
		{name: "sequence record", format: "SEQUENCE_FILE", compression: "GZIP", sequenceType: "RECORD", wantExt: ".seq", wantMagic: "SEQ\x06"},
		{name: "sequence block", format: "SEQUENCE_FILE", compression: "ZSTD", sequenceType: "BLOCK", wantExt: ".seq", wantMagic: "SEQ\x06"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default("/data/${YYYY}/${MM}/${DD}/")
			c.UniquePrefix = "avro_test"
			c.Format = tt.format
			if tt.compression != "" {
				c.Compression = tt.compression
			}
			c.SequenceCompressionType = tt.sequenceType
			if tt.format == "AVRO" {
				c.AvroSchema = schema
			}
			c.MaxRecords = 3
			c.LateRecordsLimit = "30m"
			h := newHarness(t, c)

			batch := []*record.Record{
				record.New(
					record.Field{Name: "name", Value: "alpha"},
					record.Field{Name: "count", Value: int64(1)},
					record.Field{Name: "ratio", Value: 0.25},
					record.Field{Name: "ok", Value: true},
				),
				record.New(
					record.Field{Name: "name", Value: "beta"},
					record.Field{Name: "count", Value: int64(9007199254740993)},
					record.Field{Name: "ratio", Value: 1.5},
					record.Field{Name: "ok", Value: false},
				),
				record.New(
					record.Field{Name: "name", Value: "gamma"},
					record.Field{Name: "count", Value: int64(-7)},
					record.Field{Name: "ratio", Value: -2.75},
					record.Field{Name: "ok", Value: true},
				),
			}
			report, err := h.stage.Write(ctx, batch)
			require.NoError(t, err)
			assert.Equal(t, 3, report.Written)
			// the third record filled the handle, which was committed within the batch
			require.Len(t, h.rotations.events, 1)
			assert.Equal(t, writer.ReasonMaxRecords, h.rotations.events[0].Reason)

			require.NoError(t, h.stage.Destroy(ctx))
			require.Len(t, h.rotations.events, 1)

			files := h.files(t)
			require.Len(t, files, 1)
			assert.Equal(t, "/data/2024/05/03", path.Dir(files[0]))
			assert.True(t, strings.HasPrefix(path.Base(files[0]), "avro_test_"), files[0])
			assert.Equal(t, tt.wantExt, path.Ext(files[0]))

			data, err := afero.ReadFile(h.fs.Afero(), files[0])
			require.NoError(t, err)
			assert.Equal(t, []byte(tt.wantMagic), data[:4])

			got := h.read(t, files[0])
			require.Len(t, got, len(batch))
			for i, want := range batch {
				for _, f := range want.Fields() {
					v, ok := got[i].Get(f.Name)
					require.True(t, ok, "record %d has no field %s", i, f.Name)
					assert.Equal(t, f.Value, v, "record %d field %s", i, f.Name)
				}
			}
		})
	}
}

func TestStage_RotatesOnMaxRecords(t *testing.T) {
	c := dailyConfig()
	c.MaxRecords = 2
	h := newHarness(t, c)

	var batch []*record.Record
	for i := 0; i < 5; i++ {
		batch = append(batch, event("2024-05-03T10:00:00Z", "m"))
	}
	_, err := h.stage.Write(ctx, batch)
	require.NoError(t, err)
	// two handles filled up during the batch
	require.Len(t, h.rotations.events, 2)

	require.NoError(t, h.stage.Destroy(ctx))
	require.Len(t, h.rotations.events, 3)

	var counts []int64
	var reasons []writer.RotationReason
	for _, e := range h.rotations.events {
		counts = append(counts, e.Records)
		reasons = append(reasons, e.Reason)
	}
	assert.Equal(t, []int64{2, 2, 1}, counts)
	assert.Equal(t, []writer.RotationReason{writer.ReasonMaxRecords, writer.ReasonMaxRecords, writer.ReasonShutdown}, reasons)
	assert.Len(t, h.files(t), 3)

	// each artifact holds exactly the number of records its handle counted
	for _, e := range h.rotations.events {
		assert.Len(t, h.read(t, e.Path), int(e.Records))
	}
}

func TestStage_LateRecordsAreNeverWritten(t *testing.T) {
	h := newHarness(t, dailyConfig())

	report, err := h.stage.Write(ctx, []*record.Record{
		event("2024-05-03T10:00:00Z", "current"),
		event("2024-05-01T10:00:00Z", "late"),
		event("2024-04-30T23:59:59Z", "late"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 2, report.Late)
	require.NoError(t, h.stage.Destroy(ctx))

	for _, f := range h.files(t) {
		for _, r := range h.read(t, f) {
			msg, _ := r.Get("msg")
			assert.NotEqual(t, "late", msg)
		}
	}
	entries := h.sink.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, errorsink.ReasonLate, e.Reason)
	}
	assert.EqualValues(t, 2, h.stage.Status().Diverted[string(errorsink.ReasonLate)])
}

func TestStage_UnparsableTimeGoesToFallback(t *testing.T) {
	h := newHarness(t, dailyConfig())

	report, err := h.stage.Write(ctx, []*record.Record{
		event("yesterday-ish", "x"),
		record.New(record.Field{Name: "msg", Value: "no time"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Written)
	require.NoError(t, h.stage.Destroy(ctx))

	files := h.files(t)
	require.Len(t, files, 1)
	assert.Equal(t, "/data/_unknown_time", path.Dir(files[0]))
}

func TestStage_NoTempFilesAfterDestroy(t *testing.T) {
	c := dailyConfig()
	c.DirTemplate = `/data/${field("host")}/${YYYY}/${MM}/${DD}`
	c.MaxOpenFiles = 2
	h := newHarness(t, c)

	// three hosts through two writers forces an eviction
	for _, host := range []string{"h1", "h2", "h3", "h1"} {
		_, err := h.stage.Write(ctx, []*record.Record{
			record.New(record.Field{Name: "ts", Value: "2024-05-03T10:00:00Z"}, record.Field{Name: "host", Value: host}),
		})
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}
	require.NoError(t, h.stage.Destroy(ctx))

	files := h.files(t)
	assert.Len(t, files, 4)
	for _, f := range files {
		assert.False(t, writer.IsTempName(path.Base(f)), f)
	}
	assert.EqualValues(t, 2, h.stage.Status().Rotations[writer.ReasonEvicted])
	// destroying again is harmless
	assert.NoError(t, h.stage.Destroy(ctx))
}

func TestStage_InitFailsOnInvalidConfig(t *testing.T) {
	c := dailyConfig()
	c.DirTemplate = "/data/${unknown}"
	s := New(c, WithFileSystem(filesystem.NewMemFS()))

	err := s.Init(ctx)
	var validationErr *config.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = s.Write(ctx, []*record.Record{event("2024-05-03T10:00:00Z", "m")})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, s.Destroy(ctx))
}

type renameFailingFS struct {
	filesystem.FileSystem
}

func (renameFailingFS) Rename(context.Context, string, string) error {
	return os.ErrPermission
}

func TestStage_RotationFailureHaltsStage(t *testing.T) {
	c := dailyConfig()
	c.MaxRecords = 1
	h := newHarness(t, c, WithFileSystem(renameFailingFS{filesystem.NewMemFS()}))

	_, err := h.stage.Write(ctx, []*record.Record{event("2024-05-03T10:00:00Z", "m")})
	require.Error(t, err)
	assert.True(t, writer.IsRotationError(err))

	_, err = h.stage.Write(ctx, []*record.Record{event("2024-05-03T10:00:00Z", "m")})
	assert.ErrorIs(t, err, ErrStageFailed)
	assert.True(t, writer.IsRotationError(err))
	assert.EqualValues(t, 1, h.stage.Status().FailedCommits)
}

// flakyFS refuses to create directories until ready, and counts renames, which always fail transiently
type flakyFS struct {
	filesystem.FileSystem
	ready   bool
	renames int
}

func (f *flakyFS) MkdirAll(ctx context.Context, dir string) error {
	if !f.ready {
		return os.ErrPermission
	}
	return f.FileSystem.MkdirAll(ctx, dir)
}

func (f *flakyFS) Rename(context.Context, string, string) error {
	f.renames++
	return errInjected
}

func TestStage_InitRetryWrapsFileSystemOnce(t *testing.T) {
	c := dailyConfig()
	c.MaxRecords = 1
	retries := 1
	c.RenameRetries = &retries
	fs := &flakyFS{FileSystem: filesystem.NewMemFS()}
	s := New(c, WithFileSystem(fs), WithClock(clock.NewManual(stageTime)), WithErrorSink(errorsink.NewMemorySink()))

	require.Error(t, s.Init(ctx))
	fs.ready = true
	require.NoError(t, s.Init(ctx))

	_, err := s.Write(ctx, []*record.Record{event("2024-05-03T10:00:00Z", "m")})
	assert.True(t, writer.IsRotationError(err))
	// one attempt plus one retry: a second wrapper would multiply the attempts
	assert.Equal(t, 2, fs.renames)
}

func TestStage_LateRecordsFile(t *testing.T) {
	c := dailyConfig()
	c.LateRecordsAction = "SEND_TO_LATE_RECORDS_FILE"
	c.LateRecordsDirTemplate = "/late/${YYYY}/${MM}/${DD}"
	h := newHarness(t, c)

	report, err := h.stage.Write(ctx, []*record.Record{event("2024-05-01T10:00:00Z", "late")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Late)
	require.NoError(t, h.stage.Destroy(ctx))

	files := h.files(t)
	require.Len(t, files, 1)
	assert.Equal(t, "/late/2024/05/01", path.Dir(files[0]))
	assert.Empty(t, h.sink.Entries())
}
