package errorsink

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/record"
)

// Reason is why a record was diverted from its partition
type Reason string

const (
	ReasonLate     Reason = "LATE_RECORD"
	ReasonTemplate Reason = "TEMPLATE_ERROR"
	ReasonEncode   Reason = "ENCODE_ERROR"
	ReasonWrite    Reason = "WRITE_ERROR"
)

// Entry is a diverted record
type Entry struct {
	Record    *record.Record
	Reason    Reason
	Err       error
	Partition string
	Time      time.Time
}

// Sink receives diverted records. An error returned by Emit means the record has been lost.
type Sink interface {
	Emit(ctx context.Context, entry Entry) error
	Close() error
}

type entryJSON struct {
	Time      time.Time       `json:"time"`
	Reason    Reason          `json:"reason"`
	Error     string          `json:"error,omitempty"`
	Partition string          `json:"partition,omitempty"`
	ID        string          `json:"id,omitempty"`
	Record    json.RawMessage `json:"record"`
}

// MarshalEntry returns the JSON form of an entry, used by the file and broker sinks
func MarshalEntry(entry Entry) ([]byte, error) {
	rec, err := encoding.MarshalRecord(entry.Record)
	if err != nil {
		// keep the diversion even if a field cannot be represented
		rec, _ = json.Marshal(entry.Record.String())
	}
	e := entryJSON{
		Time:      entry.Time,
		Reason:    entry.Reason,
		Partition: entry.Partition,
		ID:        entry.Record.ID(),
		Record:    rec,
	}
	if entry.Err != nil {
		e.Error = entry.Err.Error()
	}
	return json.Marshal(e)
}
