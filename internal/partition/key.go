package partition

import (
	"fmt"
	"time"
)

// Key identifies the partition a record is routed to: the resolved directory, plus the time bucket the
// directory represents. Two keys with the same Dir always address the same writer.
type Key struct {
	Dir    string
	Bucket Bucket
	// Fallback is set when the record had no usable event time and was routed to the fallback directory
	Fallback bool
}

func (k Key) String() string {
	return k.Dir
}

// Bucket is the half open time range [Start, End) covered by a partition.
// A zero End means the partition is not bounded in time (the template has no time variables, or the
// record had no usable time) and it can never be late.
type Bucket struct {
	Start time.Time
	End   time.Time
}

func (b Bucket) Unbounded() bool {
	return b.End.IsZero()
}

func (b Bucket) String() string {
	if b.Unbounded() {
		return "unbounded"
	}
	return fmt.Sprintf("[%s, %s)", b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
}
