package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/record"
)

func Test_readJSONLines(t *testing.T) {
	input := `{"ts":"2024-05-03T10:00:00Z","msg":"a"}

not json
{"ts":"2024-05-03T11:00:00Z","msg":"b"}
`
	var got []*record.Record
	err := readJSONLines(context.Background(), "test", strings.NewReader(input), func(rec *record.Record) error {
		got = append(got, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	msg, _ := got[1].Get("msg")
	assert.Equal(t, "b", msg)
}

func Test_readInputs(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.jsonl", "b.jsonl"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n"), 0o644))
		files = append(files, p)
	}

	var sizes []int
	err := readInputs(context.Background(), files, 4, func(batch []*record.Record) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	// batches span files
	assert.Equal(t, []int{4, 2}, sizes)
}

func Test_doWrite(t *testing.T) {
	t.Cleanup(viper.Reset)
	out := t.TempDir()
	input := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(input, []byte(`{"ts":"2024-05-03T10:00:00Z","msg":"a"}
{"ts":"2024-05-03T11:00:00Z","msg":"b"}
{"ts":"2024-05-04T09:00:00Z","msg":"c"}
`), 0o644))

	// the records are old, so late detection is disabled
	configPath := filepath.Join(t.TempDir(), "stage.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(`
dir_template       = "`+filepath.ToSlash(out)+`/$${YYYY}/$${MM}/$${DD}"
time_driver        = "field:ts"
late_records_limit = "0s"
`), 0o644))

	viper.Set(constants.ArgConfig, configPath)
	viper.Set(constants.ArgUniquePrefix, "events")
	viper.Set(constants.ArgBatchSize, 2)

	require.NoError(t, doWrite(context.Background(), []string{input}))

	for _, day := range []string{"2024/05/03", "2024/05/04"} {
		entries, err := os.ReadDir(filepath.Join(out, day))
		require.NoError(t, err)
		require.Len(t, entries, 1, day)
		assert.True(t, strings.HasPrefix(entries[0].Name(), "events_"))

		var buf bytes.Buffer
		require.NoError(t, catFile(context.Background(), &buf, filepath.Join(out, day, entries[0].Name())))
		assert.NotEmpty(t, buf.String())
	}
}

func Test_stageConfig(t *testing.T) {
	tests := []struct {
		name    string
		flags   map[string]any
		check   func(t *testing.T, dirTemplate, format string)
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "no config or template",
			flags:   map[string]any{},
			wantErr: assert.Error,
		},
		{
			name:  "template and format flags",
			flags: map[string]any{constants.ArgDirTemplate: "/data/${YYYY}", constants.ArgFormat: "avro"},
			check: func(t *testing.T, dirTemplate, format string) {
				assert.Equal(t, "/data/${YYYY}", dirTemplate)
				assert.Equal(t, "avro", format)
			},
			wantErr: assert.NoError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			for k, v := range tt.flags {
				viper.Set(k, v)
			}
			c, err := stageConfig()
			if !tt.wantErr(t, err) {
				return
			}
			if tt.check != nil {
				tt.check(t, c.DirTemplate, c.Format)
			}
		})
	}
}
