package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	stageTime := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	day := func(d int) Key {
		start := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
		return Key{Dir: "/data", Bucket: Bucket{Start: start, End: start.AddDate(0, 0, 1)}}
	}
	tests := []struct {
		name   string
		key    Key
		cutoff time.Duration
		want   Classification
	}{
		{name: "today", key: day(10), cutoff: time.Hour, want: Current},
		{name: "yesterday inside cutoff", key: day(9), cutoff: 13 * time.Hour, want: Current},
		{name: "yesterday ending exactly at cutoff", key: day(9), cutoff: 12 * time.Hour, want: Current},
		{name: "yesterday outside cutoff", key: day(9), cutoff: time.Hour, want: Late},
		{name: "last week", key: day(3), cutoff: 24 * time.Hour, want: Late},
		{name: "cutoff disabled", key: day(3), cutoff: 0, want: Current},
		{name: "unbounded", key: Key{Dir: "/data/_unknown_time", Fallback: true}, cutoff: time.Hour, want: Current},
		{name: "future", key: day(11), cutoff: time.Hour, want: Current},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.key, stageTime, tt.cutoff))
		})
	}
}
