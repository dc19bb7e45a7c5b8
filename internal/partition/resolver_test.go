package partition

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/tailwriter/internal/record"
)

func TestNewResolver(t *testing.T) {
	tests := []struct {
		name     string
		template string
		opts     []ResolverOption
		wantErr  assert.ErrorAssertionFunc
	}{
		{name: "daily", template: "/data/${YYYY}/${MM}/${DD}/", wantErr: assert.NoError},
		{name: "record field", template: "/data/${record.region}/${YYYY}", wantErr: assert.NoError},
		{name: "field function", template: `/data/${field("geo/country")}`, wantErr: assert.NoError},
		{name: "every minutes", template: "/data/${hh}/${every(15, mm)}", wantErr: assert.NoError},
		{name: "static", template: "/data/static", wantErr: assert.NoError},
		{name: "empty", template: "  ", wantErr: assert.Error},
		{name: "syntax error", template: "/data/${YYYY", wantErr: assert.Error},
		{name: "unknown variable", template: "/data/${YEAR}", wantErr: assert.Error},
		{name: "unknown function", template: "/data/${nope(YYYY)}", wantErr: assert.Error},
		{name: "every on a day", template: "/data/${every(2, DD)}", wantErr: assert.Error},
		{name: "every non literal", template: "/data/${every(MM, mm)}", wantErr: assert.Error},
		{name: "every too large", template: "/data/${every(90, mm)}", wantErr: assert.Error},
		{name: "every zero", template: "/data/${every(0, ss)}", wantErr: assert.Error},
		{name: "parent traversal", template: "/data/../${YYYY}", wantErr: assert.Error},
		{name: "temp segment", template: "/data/_tmp_x/${YYYY}", wantErr: assert.Error},
		{name: "nil location", template: "/data/${YYYY}", opts: []ResolverOption{WithLocation(nil)}, wantErr: assert.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.template, tt.opts...)
			tt.wantErr(t, err)
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	stageTime := time.Date(2024, 3, 9, 14, 37, 12, 0, time.UTC)
	tests := []struct {
		name       string
		template   string
		opts       []ResolverOption
		rec        *record.Record
		wantDir    string
		wantBucket Bucket
		wantErr    bool
	}{
		{
			name:     "stage time daily",
			template: "/data/${YYYY}/${MM}/${DD}/",
			rec:      record.New(record.Field{Name: "msg", Value: "hello"}),
			wantDir:  "/data/2024/03/09",
			wantBucket: Bucket{
				Start: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name:     "event time hourly",
			template: "/data/${YYYY}-${MM}-${DD}/${hh}",
			opts:     []ResolverOption{WithTimeField("ts")},
			rec:      record.New(record.Field{Name: "ts", Value: "2024-01-02T05:10:00Z"}),
			wantDir:  "/data/2024-01-02/05",
			wantBucket: Bucket{
				Start: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC),
			},
		},
		{
			name:     "every 15 minutes",
			template: "/data/${hh}${every(15, mm)}",
			rec:      record.New(),
			wantDir:  "/data/1430",
			wantBucket: Bucket{
				Start: time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC),
				End:   time.Date(2024, 3, 9, 14, 45, 0, 0, time.UTC),
			},
		},
		{
			name:     "record fields",
			template: `/data/${lower(record.region)}/${field("http status")}`,
			rec: record.New(
				record.Field{Name: "region", Value: "EU-West"},
				record.Field{Name: "http status", Value: 404},
			),
			wantDir: "/data/eu-west/404",
		},
		{
			name:     "location",
			template: "/data/${DD}/${hh}",
			opts:     []ResolverOption{WithLocation(time.FixedZone("plus10", 10*60*60))},
			rec:      record.New(),
			wantDir:  "/data/10/00",
			wantBucket: Bucket{
				Start: time.Date(2024, 3, 10, 0, 0, 0, 0, time.FixedZone("plus10", 10*60*60)),
				End:   time.Date(2024, 3, 10, 1, 0, 0, 0, time.FixedZone("plus10", 10*60*60)),
			},
		},
		{
			name:     "missing field",
			template: "/data/${record.region}",
			rec:      record.New(record.Field{Name: "other", Value: "x"}),
			wantErr:  true,
		},
		{
			name:     "missing field via function",
			template: `/data/${field("region")}`,
			rec:      record.New(),
			wantErr:  true,
		},
		{
			name:     "null field",
			template: `/data/${field("region")}`,
			rec:      record.New(record.Field{Name: "region", Value: nil}),
			wantErr:  true,
		},
		{
			name:     "field resolves to parent dir",
			template: "/data/${record.region}/x",
			rec:      record.New(record.Field{Name: "region", Value: ".."}),
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResolver(tt.template, tt.opts...)
			require.NoError(t, err)

			got, err := r.Resolve(tt.rec, stageTime)
			if tt.wantErr {
				var templateErr *TemplateError
				require.True(t, errors.As(err, &templateErr), "expected a TemplateError, got %v", err)
				assert.Equal(t, tt.template, templateErr.Template)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDir, got.Dir)
			assert.False(t, got.Fallback)
			assert.True(t, tt.wantBucket.Start.Equal(got.Bucket.Start), "start: want %s got %s", tt.wantBucket.Start, got.Bucket.Start)
			assert.True(t, tt.wantBucket.End.Equal(got.Bucket.End), "end: want %s got %s", tt.wantBucket.End, got.Bucket.End)
		})
	}
}

func TestResolver_Resolve_UnusableTimeUsesFallback(t *testing.T) {
	r, err := NewResolver("/data/${YYYY}/${MM}/${DD}/", WithTimeField("ts"))
	require.NoError(t, err)

	for name, rec := range map[string]*record.Record{
		"unparsable": record.New(record.Field{Name: "ts", Value: "not a time"}),
		"missing":    record.New(record.Field{Name: "msg", Value: "x"}),
		"null":       record.New(record.Field{Name: "ts", Value: nil}),
	} {
		t.Run(name, func(t *testing.T) {
			key, err := r.Resolve(rec, time.Now())
			require.NoError(t, err)
			assert.True(t, key.Fallback)
			assert.Equal(t, "/data/_unknown_time", key.Dir)
			assert.True(t, key.Bucket.Unbounded())
		})
	}
}

func TestResolver_Resolve_ConfiguredFallback(t *testing.T) {
	r, err := NewResolver("/data/${YYYY}", WithTimeField("ts"), WithFallbackDir("/errors/notime/"))
	require.NoError(t, err)

	key, err := r.Resolve(record.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "/errors/notime", key.Dir)
}

func TestResolver_Resolve_Deterministic(t *testing.T) {
	r, err := NewResolver("/data/${record.host}/${YYYY}${MM}${DD}${hh}", WithTimeField("ts"))
	require.NoError(t, err)

	rec := record.New(
		record.Field{Name: "host", Value: "web-1"},
		record.Field{Name: "ts", Value: int64(1700000000000)},
	)
	first, err := r.Resolve(rec, time.Now())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		// the stage time is irrelevant when the time comes from the record
		got, err := r.Resolve(rec, time.Now().Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, "/data/web-1/2023111422", first.Dir)
}

func TestResolver_Resolve_FieldValues(t *testing.T) {
	tests := []struct {
		name     string
		template string
		value    any
		wantDir  string
		wantErr  assert.ErrorAssertionFunc
	}{
		{name: "unreferenced NaN", template: "/data/${YYYY}", value: math.NaN(), wantDir: "/data/2024", wantErr: assert.NoError},
		{name: "other field referenced", template: "/data/${record.host}", value: math.NaN(), wantDir: "/data/web-1", wantErr: assert.NoError},
		{name: "referenced NaN", template: "/data/${record.v}", value: math.NaN(), wantErr: assert.Error},
		{name: "NaN through field()", template: `/data/${field("v")}`, value: float32(math.NaN()), wantErr: assert.Error},
		{name: "number", template: "/data/${record.v}", value: int64(42), wantDir: "/data/42", wantErr: assert.NoError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResolver(tt.template)
			require.NoError(t, err)
			rec := record.New(record.Field{Name: "host", Value: "web-1"}, record.Field{Name: "v", Value: tt.value})

			var key Key
			require.NotPanics(t, func() {
				key, err = r.Resolve(rec, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC))
			})
			if !tt.wantErr(t, err) || err != nil {
				var templateErr *TemplateError
				assert.ErrorAs(t, err, &templateErr)
				return
			}
			assert.Equal(t, tt.wantDir, key.Dir)
		})
	}
}

func TestFieldReferences(t *testing.T) {
	tests := []struct {
		template string
		want     []string
	}{
		{template: "/data/${YYYY}", want: []string{}},
		{template: "/data/${record.host}/${record.region}/${record.host}", want: []string{"host", "region"}},
		{template: `/data/${lower(record.host)}`, want: []string{"host"}},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			r, err := NewResolver(tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.fieldRefs)
		})
	}
}

func TestResolver_Resolve_StaticTemplateIsUnbounded(t *testing.T) {
	r, err := NewResolver("/data/all")
	require.NoError(t, err)

	key, err := r.Resolve(record.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "/data/all", key.Dir)
	assert.True(t, key.Bucket.Unbounded())
}

func TestDefaultFallbackDir(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{template: "/data/${YYYY}/${MM}", want: "/data/_unknown_time"},
		{template: "/data/day-${DD}", want: "/data/_unknown_time"},
		{template: "${YYYY}/${MM}", want: "_unknown_time"},
		{template: "/data/static/", want: "/data/static/_unknown_time"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultFallbackDir(tt.template))
		})
	}
}

func TestStaticDir(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{template: "/data/${YYYY}/${MM}", want: "/data"},
		{template: "/data/day-${DD}", want: "/data"},
		{template: "/data/${field(\"host\")}/${YYYY}", want: "/data"},
		{template: "${YYYY}/${MM}", want: "."},
		{template: "/data/static", want: "/data/static"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, StaticDir(tt.template))
		})
	}
}
