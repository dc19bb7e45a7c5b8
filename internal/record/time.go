package record

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

var ErrNoTime = errors.New("record has no event time")

// supported string layouts for event time fields, tried in order
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// TimeOf extracts an event time from the named field.
//
// Accepted values are time.Time, strings in one of the RFC 3339 (or ISO 8601 date/datetime) layouts,
// numeric strings and numbers, which are interpreted as milliseconds since the Unix epoch.
// A missing or null field returns ErrNoTime.
func (r *Record) TimeOf(field string) (time.Time, error) {
	v, ok := r.Get(field)
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("field %q: %w", field, ErrNoTime)
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", field, err)
	}
	return t, nil
}

func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, ErrNoTime
		}
		return *t, nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case int:
		return time.UnixMilli(int64(t)).UTC(), nil
	case int32:
		return time.UnixMilli(int64(t)).UTC(), nil
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case json.Number:
		return parseTimeString(t.String())
	case string:
		return parseTimeString(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value of type %T", v)
	}
}

func parseTimeString(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrNoTime
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable time value %q", s)
}
